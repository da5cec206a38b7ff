package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// redisURLPattern matches redis URLs that embed a password.
var redisURLPattern = regexp.MustCompile(`^rediss?://[^@/]*:[^@/]+@`)

// redactOptions hide the secrets this service handles: the redis password,
// bearer credentials forwarded to the quote source, and the identity headers.
func redactOptions() []masq.Option {
	return []masq.Option{
		masq.WithFieldName("Password"),
		masq.WithFieldName("password"),
		masq.WithFieldName("Authorization"),
		masq.WithFieldName("authorization"),
		masq.WithFieldName("token"),
		masq.WithFieldPrefix("secret"),
		masq.WithRegex(regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+$`)),
		masq.WithRegex(redisURLPattern),
	}
}

// NewReplaceAttr returns a slog ReplaceAttr that masks secrets. extra adds
// rules on top of the built-in ones.
func NewReplaceAttr(extra ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(redactOptions(), extra...)...)
}
