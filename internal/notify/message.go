package notify

import "fmt"

// TestMessage is sent by the --test-webhook self-test.
const TestMessage = "portalwatch webhook test: if you can read this, alerts will arrive here."

// Mention formats a user mention for the chat platform.
func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// ChangeMessage builds the alert for a count change.
func ChangeMessage(mentionID string, previous, current int, pageURL string) string {
	return fmt.Sprintf("%s Tracked content on the watched page changed: %d → %d item(s). Check it out at: %s",
		Mention(mentionID), previous, current, pageURL)
}
