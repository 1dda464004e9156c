// Package notify is the supplemental desktop CAPTCHA ping: when this
// process becomes the one driving headed CAPTCHA recovery, it fires a
// best-effort OS toast so a human at the machine notices the recovery
// window without tailing logs. This is never on the request's critical
// path — callers are free to ignore the returned error.
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// Notifier fires Windows toast notifications. On any other OS every
// method returns an error and does nothing.
type Notifier struct {
	appID string
}

// New creates a Notifier. An empty appID defaults to the tool's own name.
func New(appID string) *Notifier {
	if appID == "" {
		appID = "huge-ai-search"
	}
	return &Notifier{appID: appID}
}

// IsSupported reports whether toast notifications work on this platform.
func (n *Notifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}

// NotifyCaptchaRecoveryStarted fires when this process began driving a
// headed CAPTCHA recovery window.
func (n *Notifier) NotifyCaptchaRecoveryStarted(sessionID string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("notify: toast notifications only supported on Windows")
	}
	notification := toast.Notification{
		AppID:   n.appID,
		Title:   "AI 搜索需要人工验证",
		Message: fmt.Sprintf("会话 %s 遇到验证码，请切换到浏览器窗口完成验证。", sessionID),
		Audio:   toast.IM,
	}
	return notification.Push()
}
