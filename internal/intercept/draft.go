package intercept

import (
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// DraftRequest 从暂停快照生成可编辑的请求草稿
func DraftRequest(item model.PendingItem) traffic.Request {
	req := traffic.NewRequest()
	if item.Exchange.Method != "" {
		req.Method = item.Exchange.Method
	}
	req.URL = item.Exchange.URL
	if item.Exchange.RequestHeaders.Len() > 0 {
		req.Headers = item.Exchange.RequestHeaders.Clone()
	}
	req.Body = item.Exchange.RequestBody
	return *req
}

// DraftResponse 从暂停快照生成可编辑的响应草稿，状态码缺省为 200
func DraftResponse(item model.PendingItem) traffic.Response {
	res := traffic.NewResponse()
	if item.Exchange.Status > 0 {
		res.StatusCode = item.Exchange.Status
	}
	if item.Exchange.ResponseHeaders.Len() > 0 {
		res.Headers = item.Exchange.ResponseHeaders.Clone()
	}
	res.Body = item.Exchange.ResponseBody
	return *res
}
