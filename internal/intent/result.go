// Package intent classifies user utterances into the structured results the
// booking dialogue branches on.
package intent

import "fmt"

// Kind tags a Result.
type Kind int

// Result kinds. The zero value is Unparseable.
const (
	KindUnparseable Kind = iota
	KindName
	KindAgreement
	KindSeriousProblem
	KindCosmeticProblem
	KindPhone
)

func (k Kind) String() string {
	switch k {
	case KindUnparseable:
		return "unparseable"
	case KindName:
		return "name"
	case KindAgreement:
		return "agreement"
	case KindSeriousProblem:
		return "serious_problem"
	case KindCosmeticProblem:
		return "cosmetic_problem"
	case KindPhone:
		return "phone"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Agreement is a three-way answer.
type Agreement int

// Agreement levels.
const (
	Yes Agreement = iota + 1
	No
	Unsure
)

func (a Agreement) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Unsure:
		return "unsure"
	}
	return "none"
}

// SeriousProblem is a dental health problem.
type SeriousProblem string

// Serious problems.
const (
	Toothache      SeriousProblem = "toothache"
	GumPain        SeriousProblem = "gumpain"
	Extraction     SeriousProblem = "extraction"
	SeriousUnknown SeriousProblem = "unknown"
)

// CosmeticProblem is a cosmetic service request.
type CosmeticProblem string

// Cosmetic problems.
const (
	Whitening       CosmeticProblem = "whitening"
	Alignment       CosmeticProblem = "alignment"
	CosmeticUnknown CosmeticProblem = "unknown"
)

// Result is the outcome of one extraction. Only the field matching Kind is
// meaningful.
type Result struct {
	kind      Kind
	text      string
	agreement Agreement
	serious   SeriousProblem
	cosmetic  CosmeticProblem
}

// Unparseable is the result of a failed extraction.
func Unparseable() Result { return Result{} }

// Name wraps an extracted first name.
func Name(name string) Result { return Result{kind: KindName, text: name} }

// Phone wraps an extracted phone number.
func Phone(phone string) Result { return Result{kind: KindPhone, text: phone} }

// Agree wraps an agreement level.
func Agree(a Agreement) Result { return Result{kind: KindAgreement, agreement: a} }

// Serious wraps a serious problem.
func Serious(p SeriousProblem) Result { return Result{kind: KindSeriousProblem, serious: p} }

// Cosmetic wraps a cosmetic problem.
func Cosmetic(p CosmeticProblem) Result { return Result{kind: KindCosmeticProblem, cosmetic: p} }

// Kind returns the result's tag.
func (r Result) Kind() Kind { return r.kind }

// Text returns the name or phone of a Name or Phone result.
func (r Result) Text() string { return r.text }

// Agreement returns the level of an Agreement result.
func (r Result) Agreement() Agreement { return r.agreement }

// SeriousProblem returns the problem of a SeriousProblem result.
func (r Result) SeriousProblem() SeriousProblem { return r.serious }

// CosmeticProblem returns the problem of a CosmeticProblem result.
func (r Result) CosmeticProblem() CosmeticProblem { return r.cosmetic }

// String renders the result for logs, e.g. name("Maria").
func (r Result) String() string {
	switch r.kind {
	case KindName, KindPhone:
		return fmt.Sprintf("%s(%q)", r.kind, r.text)
	case KindAgreement:
		return fmt.Sprintf("%s(%s)", r.kind, r.agreement)
	case KindSeriousProblem:
		return fmt.Sprintf("%s(%s)", r.kind, r.serious)
	case KindCosmeticProblem:
		return fmt.Sprintf("%s(%s)", r.kind, r.cosmetic)
	}
	return r.kind.String()
}
