package chat

import "strings"

// MaxTextLength is the Telegram message size cap in Unicode codepoints.
// Bodies longer than this go out as document attachments.
const MaxTextLength = 4096

// EscapeText backslash-escapes every MarkdownV2 control character in
// user-originated text.
func EscapeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, ch := range input {
		switch ch {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// escapeCode escapes the only two characters MarkdownV2 treats
// specially inside code spans.
func escapeCode(input string) string {
	out := strings.ReplaceAll(input, `\`, `\\`)
	return strings.ReplaceAll(out, "`", "\\`")
}

// InlineCode wraps input in backticks as a MarkdownV2 code span.
func InlineCode(input string) string {
	return "`" + escapeCode(input) + "`"
}

// CodeBlock renders a fenced MarkdownV2 code block with an optional
// language tag.
func CodeBlock(language, input string) string {
	return "```" + language + "\n" + escapeCode(input) + "\n```"
}
