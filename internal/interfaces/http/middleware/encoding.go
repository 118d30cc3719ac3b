// Package middleware HTTP 中间件
package middleware

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// maxTranscodeBytes 超过该大小的请求体不做转码
const maxTranscodeBytes = 1 << 20

// EnsureUTF8Body 把非 UTF-8 请求体转成 UTF-8
// 优先使用 Content-Type 声明的 charset，未声明且内容不是合法 UTF-8 时按 GBK 尝试
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 || c.Request.ContentLength > maxTranscodeBytes {
			c.Next()
			return
		}

		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTranscodeBytes+1))
		_ = c.Request.Body.Close()
		if err != nil || len(raw) > maxTranscodeBytes {
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			c.Next()
			return
		}

		body := raw
		if dec := declaredDecoder(c.GetHeader("Content-Type")); dec != nil {
			if converted, err := decode(raw, dec); err == nil && utf8.Valid(converted) {
				body = converted
			}
		} else if !utf8.Valid(raw) {
			if converted, err := decode(raw, simplifiedchinese.GBK); err == nil && utf8.Valid(converted) {
				body = converted
			}
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

// declaredDecoder 解析 Content-Type 中的非 UTF-8 charset
func declaredDecoder(contentType string) encoding.Encoding {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc
}

func decode(data []byte, enc encoding.Encoding) ([]byte, error) {
	return io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
}
