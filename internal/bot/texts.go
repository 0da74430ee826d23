package bot

// Button labels double as the text Telegram sends back when they are tapped.
const (
	BroadcastButton = "📢 Broadcast"
	ShopButton      = "🛍 Open shop"
	AdminButton     = "⚙️ Admin panel"
)

const (
	textBroadcastPrompt = "📝 <b>New broadcast</b>\n\n" +
		"Send the text to deliver to every customer.\n" +
		"HTML formatting is supported.\n\n" +
		"To cancel, send /cancel"

	textBroadcastUsage = "📢 <b>How to broadcast:</b>\n\n" +
		"Use the command:\n" +
		"<code>/broadcast Your message</code>\n\n" +
		"Example:\n" +
		"<code>/broadcast 🎉 20% off all cakes until the end of the week!</code>\n\n" +
		"Or tap '" + BroadcastButton + "' and follow the prompts."

	textBroadcastStarted  = "📤 Starting broadcast..."
	textNoRecipients      = "❌ No customers to send to."
	textBroadcastTooLong  = "❌ The text is too long for one message (max 4000 characters). Shorten it and send again."
	textDataUnavailable   = "❌ Broadcast failed: order data is unavailable. Nothing was sent."
	textCancelled         = "✅ Action cancelled."
	textNothingToCancel   = "Nothing to cancel."
	textStatsFailed       = "❌ Failed to load statistics: "
	textDefaultReply      = "I'm the shop's helper bot! 🤖\nTap '" + ShopButton + "' to place an order."
	textHelpFooter        = "To order, tap " + ShopButton + "."
	textGreetingFmt       = "Hi, %s! 👋\n\nWelcome to %s! 🎂\n\nTap the button below to see what we have:"
	textContactTitle      = "📞 <b>Our contacts:</b>"
	textContactHoursTitle = "Opening hours:"
)
