package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/aicare/internal/backend"
)

const (
	nameSystem = "You are tasked with extracting the name (first name) from the input text. " +
		"If text contains more than one name, pick one that is most likely user's. " +
		`If there is no name, respond only with "null".`

	agreementSystem = "You are tasked with understanding the level of agreement in the input text. " +
		`If user agrees, respond with "Y". If not, respond with "N". ` +
		`If it is unclear, respond with "U". You must respond with one of these letters.`

	seriousSystem = "You need to determine what is wrong with user's oral cavity from input text. " +
		"Possible problems: 1 - Toothache, 2 - Problem with gums, 3 - Remove tooth, " +
		"0 - Unknown/something else/no problem. You must respond with corresponding digit."

	cosmeticSystem = "You need to determine what kind of dental service user needs from input text. " +
		"Possible problems: 1 - Align or straighten teeth (for example with braces), 2 - Tooth whitening, " +
		"0 - Unknown/something else. You must respond with corresponding digit."

	phoneSystem = "You are tasked with extracting the phone number from the input text. " +
		"If text contains more than one, pick one that most likely belongs to the user. " +
		"You must respond with a phone number itself, without any additional symbols. " +
		`If there is no phone number, respond with "null".`
)

// Token budgets per extraction.
const (
	nameMaxTokens      = 16
	agreementMaxTokens = 2
	problemMaxTokens   = 2
	phoneMaxTokens     = 16
	maxNameRunes       = 40
)

var phonePattern = regexp.MustCompile(`^\+?[0-9(][0-9 ()-]{4,20}$`)

const minPhoneDigits = 5

// Options tunes parsing.
type Options struct {
	// UnsureAsNo folds an unsure answer into No.
	UnsureAsNo bool
}

// Extractor makes one constrained backend call per utterance and parses the
// reply against a strict allow-list. It never retries and never fails: any
// backend error or unexpected reply yields Unparseable.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger}
}

// Extract runs the extraction for kind.
func (e *Extractor) Extract(ctx context.Context, kind Kind, b backend.Backend, text string) Result {
	switch kind {
	case KindName:
		return e.Name(ctx, b, text)
	case KindAgreement:
		return e.Agreement(ctx, b, text)
	case KindSeriousProblem:
		return e.SeriousProblem(ctx, b, text)
	case KindCosmeticProblem:
		return e.CosmeticProblem(ctx, b, text)
	case KindPhone:
		return e.Phone(ctx, b, text)
	}
	return Unparseable()
}

// Name extracts the user's first name.
func (e *Extractor) Name(ctx context.Context, b backend.Backend, text string) Result {
	return parseName(e.ask(ctx, b, KindName, text, nameSystem, nameMaxTokens))
}

// Agreement extracts a yes, no or unsure answer. With Options.UnsureAsNo an
// unsure answer comes back as No.
func (e *Extractor) Agreement(ctx context.Context, b backend.Backend, text string) Result {
	return parseAgreement(e.ask(ctx, b, KindAgreement, text, agreementSystem, agreementMaxTokens), e.opts.UnsureAsNo)
}

// SeriousProblem classifies a dental health complaint.
func (e *Extractor) SeriousProblem(ctx context.Context, b backend.Backend, text string) Result {
	return parseSerious(e.ask(ctx, b, KindSeriousProblem, text, seriousSystem, problemMaxTokens))
}

// CosmeticProblem classifies a cosmetic service request.
func (e *Extractor) CosmeticProblem(ctx context.Context, b backend.Backend, text string) Result {
	return parseCosmetic(e.ask(ctx, b, KindCosmeticProblem, text, cosmeticSystem, problemMaxTokens))
}

// Phone extracts a phone number.
func (e *Extractor) Phone(ctx context.Context, b backend.Backend, text string) Result {
	return parsePhone(e.ask(ctx, b, KindPhone, text, phoneSystem, phoneMaxTokens))
}

func (e *Extractor) ask(ctx context.Context, b backend.Backend, kind Kind, text, system string, maxTokens int) string {
	if b == nil {
		e.logger.Warn("Intent extraction skipped, no backend", "kind", kind)
		return ""
	}
	out, err := b.Invoke(ctx, text, system, maxTokens)
	if err != nil {
		e.logger.Warn("Intent extraction failed", "kind", kind, "backend", b.Name(), "error", err)
		return ""
	}
	return normalize(out)
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`")
	s = strings.TrimRight(s, ".!")
	return strings.TrimSpace(s)
}

func parseName(s string) Result {
	if s == "" || strings.EqualFold(s, "null") {
		return Unparseable()
	}
	if utf8.RuneCountInString(s) > maxNameRunes {
		return Unparseable()
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return Unparseable()
		}
	}
	return Name(s)
}

func parseAgreement(s string, unsureAsNo bool) Result {
	switch strings.ToLower(s) {
	case "y":
		return Agree(Yes)
	case "n":
		return Agree(No)
	case "u":
		if unsureAsNo {
			return Agree(No)
		}
		return Agree(Unsure)
	}
	return Unparseable()
}

func parseSerious(s string) Result {
	switch s {
	case "1":
		return Serious(Toothache)
	case "2":
		return Serious(GumPain)
	case "3":
		return Serious(Extraction)
	case "0":
		return Serious(SeriousUnknown)
	}
	return Unparseable()
}

func parseCosmetic(s string) Result {
	switch s {
	case "1":
		return Cosmetic(Alignment)
	case "2":
		return Cosmetic(Whitening)
	case "0":
		return Cosmetic(CosmeticUnknown)
	}
	return Unparseable()
}

func parsePhone(s string) Result {
	if s == "" || strings.EqualFold(s, "null") || !phonePattern.MatchString(s) {
		return Unparseable()
	}
	digits := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	if digits < minPhoneDigits {
		return Unparseable()
	}
	return Phone(s)
}
