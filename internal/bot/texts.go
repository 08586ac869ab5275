package bot

import "signalbot/internal/signal"

const (
	textWelcome   = "👋 Welcome to the signal bot!\n\n📊 Get fast trading signals for Pocket Option.\nUse /help to see what you can do."
	textApplyHint = "Send /apply <pocket_id> to request access."

	textEnterPocketID      = "Please enter your Pocket Option ID: /apply <pocket_id>"
	textPocketIDDigit      = "The ID must contain at least one digit. Please try again."
	textPocketIDFormat     = "The ID must be 4 to 32 letters or digits. Please try again."
	textProcessing         = "Your request is being processed. Please wait."
	textRejected           = "Your application has been rejected."
	textPreviouslyRejected = "Your previous application was rejected. Please wait for an administrator or contact support."
	textApproved           = "Your application has been approved!"
	textRevoked            = "Your access to the bot was revoked by an administrator. Use /start to begin again."
	textRestored           = "Your access has been restored. Your application is back under review."

	textPersonalOn  = "Personal signals enabled."
	textPersonalOff = "Personal signals disabled."

	textGlobalOn  = "Signals have been enabled."
	textGlobalOff = "Signals have been disabled."

	textEnterHours     = "Enter working hours in the format HH:MM-HH:MM."
	textEnterRange     = "Enter the signal count range (for example, 6-10)."
	textHoursUpdated   = "Working hours updated."
	textRangeUpdated   = "Signal range updated."
	textNoApplications = "There are no new applications."
	textEmptyList      = "The list is empty."

	textUnexpected = signal.UnexpectedText
)

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
