package registration

import "time"

// ToastDuration is how long a toast stays up unless dismissed.
const ToastDuration = 5 * time.Second

// Generic messages used when a collaborator gives nothing better.
const (
	msgIDProcessFailed   = "Failed to process ID image"
	msgIDProcessed       = "ID processed successfully! Please review your information."
	msgSubmitFailed      = "Failed to submit registration. Please try again."
	msgSubmitted         = "Registration submitted successfully!"
	msgInvalidAttachment = "Please upload a clear photo of your ID (JPG, PNG, WEBP or HEIC, up to 10 MB)"
)

// toastSlot holds at most one toast. A newer toast replaces the older one.
type toastSlot struct {
	cur *Toast
}

func (t *toastSlot) show(kind ToastKind, message string, now time.Time) {
	t.cur = &Toast{Kind: kind, Message: message, ExpiresAt: now.Add(ToastDuration)}
}

func (t *toastSlot) dismiss() { t.cur = nil }

// current returns the visible toast, dropping it once it has expired.
func (t *toastSlot) current(now time.Time) *Toast {
	if t.cur == nil {
		return nil
	}
	if !now.Before(t.cur.ExpiresAt) {
		t.cur = nil
		return nil
	}
	c := *t.cur
	return &c
}
