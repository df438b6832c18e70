package traffic

import "strings"

// Curl 将交换的请求部分渲染为 curl 命令
func Curl(e Exchange) string {
	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(e.Method)
	b.WriteString(" ")
	b.WriteString(shellQuote(e.URL))

	for _, name := range e.RequestHeaders.Names() {
		for _, v := range e.RequestHeaders.Values(name) {
			b.WriteString(" \\\n  -H ")
			b.WriteString(shellQuote(name + ": " + v))
		}
	}

	if e.RequestBody != "" {
		b.WriteString(" \\\n  --data ")
		b.WriteString(shellQuote(e.RequestBody))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
