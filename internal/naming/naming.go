// Package naming renders the filenames conversations are stored under in a
// knowledge collection and recovers the conversation short id from them.
//
// Every rendered name starts with "[<first 8 chars of the conversation id>] "
// so a remote file can be matched back to its conversation without a side index.
package naming

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"
)

const (
	ShortIDLength = 8

	DefaultModel = "default"
	DefaultUser  = "User"
)

var defaultFormats = map[string]string{
	"date":     "%Y-%m-%d",
	"time":     "%H:%M",
	"datetime": "%Y-%m-%d_%H-%M",
}

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_]+)(?::([^{}]+))?\}`)
	shortIDRe     = regexp.MustCompile(`^\[([^\]]{1,8})\]`)
)

// Renderer renders a fixed template against a clock.
type Renderer struct {
	Template string
	Now      func() time.Time
}

func NewRenderer(template string) *Renderer {
	return &Renderer{Template: template, Now: time.Now}
}

func (r *Renderer) Render(model, user, conversationID string) string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return Render(r.Template, model, user, conversationID, now())
}

// Render substitutes {model}, {user}, {date}, {time} and {datetime} in
// template. Date placeholders accept a strftime override such as
// {date:%d-%m-%Y}. Unknown placeholders are left untouched.
func Render(template, model, user, conversationID string, at time.Time) string {
	if model == "" {
		model = DefaultModel
	}
	if user == "" {
		user = DefaultUser
	}
	model = strings.TrimSuffix(model, ":latest")

	body := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		key, format := groups[1], groups[2]

		switch key {
		case "model":
			return model
		case "user":
			return user
		case "date", "time", "datetime":
			if format == "" {
				format = defaultFormats[key]
			}
			return strftime.Format(format, at)
		default:
			return match
		}
	})

	return "[" + ShortID(conversationID) + "] " + body
}

// ShortID returns the first eight characters of a conversation id with
// any "]" removed so the bracketed prefix always parses back.
func ShortID(conversationID string) string {
	runes := []rune(strings.ReplaceAll(conversationID, "]", ""))
	if len(runes) <= ShortIDLength {
		return string(runes)
	}
	return string(runes[:ShortIDLength])
}

// ParseShortID extracts the bracketed short id prefix from a rendered filename.
func ParseShortID(filename string) (string, bool) {
	m := shortIDRe.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractShortID is ParseShortID with a random fallback. Names without the
// prefix get an id that will never match a remote file again.
func ExtractShortID(filename string) string {
	if id, ok := ParseShortID(filename); ok {
		return id
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:ShortIDLength]
}

// ConversationID derives the conversation id from a transcript file name,
// which is the base name without its final extension.
func ConversationID(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
