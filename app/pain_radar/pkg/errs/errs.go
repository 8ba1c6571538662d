// Package errs 定义请求级失败的分类标签，供外部的自动退款/重试方消费。
package errs

import (
	"context"
	"errors"
	"net/http"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Kind 错误分类
type Kind string

const (
	KindClassification Kind = "CLASSIFICATION_FAILED"
	KindSourceFetch    Kind = "SOURCE_FETCH_FAILED"
	KindPersistence    Kind = "PERSISTENCE_FAILED"
	KindTimeout        Kind = "TIMEOUT"
	KindUnknown        Kind = "UNKNOWN"
)

// Classification 分类服务失败
func Classification(cause error) error {
	return wrap(http.StatusBadGateway, KindClassification, "relevance classification failed", cause)
}

// SourceFetch 数据源抓取失败
func SourceFetch(cause error) error {
	return wrap(http.StatusBadGateway, KindSourceFetch, "source fetch failed", cause)
}

// Persistence 结果持久化失败
func Persistence(cause error) error {
	return wrap(http.StatusInternalServerError, KindPersistence, "result persistence failed", cause)
}

// Timeout 超时
func Timeout(cause error) error {
	return wrap(http.StatusGatewayTimeout, KindTimeout, "request timed out", cause)
}

func wrap(code int, kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	// 已带分类的错误不再重复包装
	var ke *kerrors.Error
	if errors.As(cause, &ke) && Kind(ke.Reason) != "" {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		kind, code, msg = KindTimeout, http.StatusGatewayTimeout, "request timed out"
	}
	return kerrors.New(code, string(kind), msg).WithCause(cause)
}

// KindOf 取出错误的分类标签
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *kerrors.Error
	if errors.As(err, &ke) {
		switch k := Kind(ke.Reason); k {
		case KindClassification, KindSourceFetch, KindPersistence, KindTimeout:
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Code 对应的 HTTP 状态码
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == KindTimeout {
		return http.StatusGatewayTimeout
	}
	return kerrors.Code(err)
}
