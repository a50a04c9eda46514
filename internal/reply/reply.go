// Package reply defines the transport-neutral shape of outbound bot messages
// so flows can be exercised in tests without a live Telegram client.
package reply

// Button is one inline keyboard entry. Exactly one of Action or URL is set:
// Action identifies a callback handled by the bot, URL opens the companion
// web application inside Telegram.
type Button struct {
	Label  string
	Action string
	URL    string
}

// Reply is a single outbound message: body text plus an ordered list of
// button rows, one button per row.
type Reply struct {
	Text    string
	Buttons []Button
}

// Text builds a plain text reply without buttons.
func Text(body string) Reply {
	return Reply{Text: body}
}

// Menu builds a reply with an inline keyboard.
func Menu(body string, buttons ...Button) Reply {
	return Reply{Text: body, Buttons: buttons}
}
