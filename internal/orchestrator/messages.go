package orchestrator

// Decision callback payloads for files awaiting a processing mode
const (
	DecisionPrefix = "filemode:"
	DecisionYes    = DecisionPrefix + "yes"
	DecisionNo     = DecisionPrefix + "no"
)

const msgWelcome = `Welcome to ScanBot! 🔎
I turn text and documents into structured records in your scan endpoints.

To get started, send me your API key in this private chat.
Use /help to see everything I understand.`

const msgWelcomeBack = `Welcome back! 🔎
Your API key is linked. Use /help to see everything I understand.`

const msgHelp = `Available commands:
/start - Start the bot
/help - Show this help message
/stats - Show your plan usage
/prompt - Show your current prompt
/list - List your endpoints

Messages I understand:
scan: <prompt> - Set the prompt used for the next scans
scan: <prompt>
<text> - Set the prompt and scan the text below it
text: <text> - Scan text with your current prompt
get: <path> - Show the data stored at an endpoint
list - List your endpoints

You can also upload a document or photo. Its caption is used as the prompt,
otherwise your current prompt is used.`

const (
	msgUnknownInput         = "I didn't understand that. Use /help to see what I can do."
	msgUnknownAction        = "Unknown action."
	msgInternalError        = "Something went wrong while handling your message. Please try again."
	msgMissingCredential    = "🔑 You haven't linked an API key yet. Send it to me in a private chat to get started."
	msgCredentialGroup      = "🔒 For your security, send your API key to me in a private chat, not in a group. Please delete the message above and try again privately."
	msgCredentialRejected   = "❌ That API key was rejected by the scan service. Please check it and try again."
	msgCredentialLinked     = "✅ Your API key is linked. Set a prompt with scan: <prompt> and start sending content."
	msgCredentialSaveFailed = "⚠️ Your API key is valid, but I couldn't save it. Please try again."
	msgKeyRejectedByService = "your API key was rejected by the scan service; send a new key to relink"
	msgScanUsage            = "Usage: scan: <prompt>, optionally followed by text on the next lines."
	msgTextUsage            = "Usage: text: <content to scan>"
	msgNoPrompt             = "📌 You don't have a prompt yet. Set one first with scan: <prompt>."
	msgPromptSaveFailed     = "⚠️ I couldn't save your prompt. Please try again."
	msgCredentialAsPrompt   = "🔑 That looks like an API key, so I won't use it as a prompt. To link a key, send it as a plain text message in a private chat with me."
	msgFileNoPrompt         = "📌 I need a prompt for this file. Add a short caption, or set one first with scan: <prompt>, then upload it again."
	msgFileEmpty            = "⚠️ That file is empty."
	msgFileHoldFailed       = "⚠️ I couldn't hold on to your file. Please upload it again."
	msgFileExpired          = "⌛ That file has expired or was already processed. Please upload it again."
	msgFilePathUnsupported  = "📎 Fetching files by path isn't supported yet (%s)."
	msgPromptSet            = "📌 Prompt set to \"%s\". Now send text with text: <content> or upload a file."
	msgCurrentPrompt        = "📌 Your current prompt is \"%s\"."
	msgFileDecision         = "📄 %s will be scanned with prompt \"%s\".\nUse vision mode for scanned pages and photos?"
	msgDecisionYes          = "✅ Yes, vision mode"
	msgDecisionNo           = "📝 No, standard"
)
