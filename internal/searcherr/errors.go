// Package searcherr defines the sentinel errors and keyword predicates the
// pipeline uses to classify what the browser subsystem reported.
package searcherr

import (
	"errors"
	"strings"
)

// ErrCaptchaHandledByOther is the sentinel the Browser Subsystem returns
// when another in-flight request already drove CAPTCHA recovery and the
// caller should simply retry its search.
var ErrCaptchaHandledByOther = errors.New("CAPTCHA_HANDLED_BY_OTHER_REQUEST")

// captchaKeywords match case-insensitively against the raw error string when
// the browser subsystem did not return the sentinel but still hit a
// verification wall.
var captchaKeywords = []string{
	"captcha",
	"验证码",
	"人机验证",
}

// loginTimeoutKeywords drive the cooldown latch (the CAPTCHA single-flight
// hold is driven by captchaKeywords). Keep this list a pure predicate on
// the error string —
// no external classifier.
var loginTimeoutKeywords = []string{
	"timeout",
	"login-required",
	"login required",
	"authentication",
	"登录超时",
	"验证超时",
	"未完成登录",
}

// IsCaptchaHandledByOther reports whether err is (or wraps) the sentinel.
func IsCaptchaHandledByOther(err error) bool {
	return err != nil && errors.Is(err, ErrCaptchaHandledByOther)
}

// TextIsCaptchaHandledByOther reports whether a raw error string (as
// carried on searcher.Result.Error, which has no room for a wrapped
// error value) equals the sentinel's text.
func TextIsCaptchaHandledByOther(text string) bool {
	return text == ErrCaptchaHandledByOther.Error()
}

// MatchesCaptchaKeywords reports whether the raw error text indicates a
// CAPTCHA was presented to the browser.
func MatchesCaptchaKeywords(text string) bool {
	return containsAny(text, captchaKeywords)
}

// MatchesLoginTimeoutKeywords reports whether the raw error text matches the
// login/verification-timeout keyword set.
func MatchesLoginTimeoutKeywords(text string) bool {
	return containsAny(text, loginTimeoutKeywords)
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
