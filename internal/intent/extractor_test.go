package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ashureev/aicare/internal/backend"
	"github.com/ashureev/aicare/internal/domain"
)

type stubBackend struct {
	reply  string
	err    error
	calls  int
	system string
	max    int
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Invoke(_ context.Context, _, system string, maxTokens int) (string, error) {
	b.calls++
	b.system, b.max = system, maxTokens
	return b.reply, b.err
}

func (b *stubBackend) InvokeMessages(context.Context, []domain.Message, int) (string, error) {
	return "", errors.New("not used")
}

func newTestExtractor(opts Options) *Extractor {
	return NewExtractor(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reply string
		want  Result
	}{
		{"Anna", Name("Anna")},
		{"  \"Mary-Jane\" ", Name("Mary-Jane")},
		{"O'Neil", Name("O'Neil")},
		{"Сергей", Name("Сергей")},
		{"null", Unparseable()},
		{`"null"`, Unparseable()},
		{"NULL", Unparseable()},
		{"", Unparseable()},
		{"Anna\nBob", Unparseable()},
		{"user_42", Unparseable()},
		{"Abcdefghij Abcdefghij Abcdefghij Abcdefghij", Unparseable()},
	}

	e := newTestExtractor(Options{})
	for _, tt := range tests {
		b := &stubBackend{reply: tt.reply}
		if got := e.Name(context.Background(), b, "text"); got != tt.want {
			t.Errorf("reply %q: got %s, want %s", tt.reply, got, tt.want)
		}
		if b.max != 16 {
			t.Errorf("name max tokens = %d, want 16", b.max)
		}
	}
}

func TestExtractAgreement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reply      string
		unsureAsNo bool
		want       Result
	}{
		{"Y", false, Agree(Yes)},
		{"y", false, Agree(Yes)},
		{" N.", false, Agree(No)},
		{"U", false, Agree(Unsure)},
		{"U", true, Agree(No)},
		{"yes", false, Unparseable()},
		{"maybe", false, Unparseable()},
		{"", false, Unparseable()},
	}

	for _, tt := range tests {
		e := newTestExtractor(Options{UnsureAsNo: tt.unsureAsNo})
		b := &stubBackend{reply: tt.reply}
		if got := e.Agreement(context.Background(), b, "text"); got != tt.want {
			t.Errorf("reply %q unsureAsNo=%v: got %s, want %s", tt.reply, tt.unsureAsNo, got, tt.want)
		}
		if b.max != 2 {
			t.Errorf("agreement max tokens = %d, want 2", b.max)
		}
	}
}

func TestExtractProblems(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(Options{})
	serious := map[string]Result{
		"1": Serious(Toothache),
		"2": Serious(GumPain),
		"3": Serious(Extraction),
		"0": Serious(SeriousUnknown),
		"4": Unparseable(),
		"a": Unparseable(),
	}
	for reply, want := range serious {
		if got := e.SeriousProblem(context.Background(), &stubBackend{reply: reply}, "x"); got != want {
			t.Errorf("serious %q: got %s, want %s", reply, got, want)
		}
	}

	cosmetic := map[string]Result{
		"1": Cosmetic(Alignment),
		"2": Cosmetic(Whitening),
		"0": Cosmetic(CosmeticUnknown),
		"3": Unparseable(),
	}
	for reply, want := range cosmetic {
		if got := e.CosmeticProblem(context.Background(), &stubBackend{reply: reply}, "x"); got != want {
			t.Errorf("cosmetic %q: got %s, want %s", reply, got, want)
		}
	}
}

func TestExtractPhone(t *testing.T) {
	t.Parallel()

	tests := map[string]Result{
		"+7 (912) 345-67-89": Phone("+7 (912) 345-67-89"),
		"89123456789":        Phone("89123456789"),
		"(555) 123-4567":     Phone("(555) 123-4567"),
		"(((((((":            Unparseable(),
		"(12) --":            Unparseable(),
		"null":               Unparseable(),
		"123":                Unparseable(),
		"call me maybe":      Unparseable(),
		"+":                  Unparseable(),
	}

	e := newTestExtractor(Options{})
	for reply, want := range tests {
		if got := e.Phone(context.Background(), &stubBackend{reply: reply}, "x"); got != want {
			t.Errorf("phone %q: got %s, want %s", reply, got, want)
		}
	}
}

func TestBackendErrorIsUnparseable(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(Options{})
	b := &stubBackend{reply: "Y", err: &backend.BackendError{Backend: "stub", Kind: backend.KindRefusal}}

	for _, kind := range []Kind{KindName, KindAgreement, KindSeriousProblem, KindCosmeticProblem, KindPhone} {
		if got := e.Extract(context.Background(), kind, b, "x"); got.Kind() != KindUnparseable {
			t.Errorf("%s: got %s, want unparseable", kind, got)
		}
	}
	if b.calls != 5 {
		t.Errorf("backend calls = %d, want one per extraction", b.calls)
	}
}

func TestExtractWithoutBackend(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(Options{})
	if got := e.Extract(context.Background(), KindName, nil, "Anna"); got.Kind() != KindUnparseable {
		t.Fatalf("got %s, want unparseable", got)
	}
	if got := e.Extract(context.Background(), KindUnparseable, &stubBackend{reply: "Y"}, "x"); got.Kind() != KindUnparseable {
		t.Fatalf("got %s, want unparseable", got)
	}
}
