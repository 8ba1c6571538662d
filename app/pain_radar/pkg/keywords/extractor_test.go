package keywords

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

type mockSource struct {
	kw  *model.ExtractedKeywords
	err error
}

func (m *mockSource) ExtractKeywords(context.Context, *llm.Usage, model.Hypothesis) (*model.ExtractedKeywords, error) {
	return m.kw, m.err
}

type mockCompleter struct {
	reply string
	err   error
}

func (m *mockCompleter) Complete(context.Context, *llm.Usage, string, string) (string, error) {
	return m.reply, m.err
}

func TestExtract_UserPhrasesFirst(t *testing.T) {
	src := &mockSource{kw: &model.ExtractedKeywords{
		Primary:   []string{"designer isolation", "remote loneliness"},
		Secondary: []string{"coworking"},
		Exclude:   []string{"Interior"},
	}}
	hyp := model.Hypothesis{
		Text:            "remote designers feel isolated",
		ProblemLanguage: `"so lonely working from home", no, I miss my team; Designer Isolation; fourth phrase`,
		ExcludeTopics:   "Interior Design, x, graphic cards",
	}

	kw := NewExtractor(src).Extract(context.Background(), nil, hyp)

	wantPrimary := []string{"so lonely working from home", "I miss my team", "Designer Isolation", "remote loneliness"}
	if !reflect.DeepEqual(kw.Primary, wantPrimary) {
		t.Errorf("Primary = %q, want %q", kw.Primary, wantPrimary)
	}
	wantExclude := []string{"interior", "interior design", "graphic cards"}
	if !reflect.DeepEqual(kw.Exclude, wantExclude) {
		t.Errorf("Exclude = %q, want %q", kw.Exclude, wantExclude)
	}
	if kw.SearchContext == "" {
		t.Error("SearchContext should default to the hypothesis statement")
	}
}

func TestExtract_FallbackOnError(t *testing.T) {
	hyp := model.Hypothesis{Text: "Remote designers feel isolated and lonely at home"}
	for _, src := range []Source{
		&mockSource{err: errors.New("model down")},
		&mockSource{kw: &model.ExtractedKeywords{Primary: []string{"  "}}},
		nil,
	} {
		kw := NewExtractor(src).Extract(context.Background(), nil, hyp)
		want := []string{"remote", "designers", "isolated", "lonely", "home"}
		if !reflect.DeepEqual(kw.Primary, want) {
			t.Errorf("Primary = %q, want %q", kw.Primary, want)
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	src := &mockSource{kw: &model.ExtractedKeywords{Primary: []string{"a b c", "d e f"}, Secondary: []string{"x"}}}
	hyp := model.Hypothesis{Text: "t", ProblemLanguage: "hello there", ExcludeTopics: "foo,bar"}
	e := NewExtractor(src)
	first := e.Extract(context.Background(), nil, hyp)
	for i := 0; i < 5; i++ {
		if got := e.Extract(context.Background(), nil, hyp); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestUserPhrases_LengthBounds(t *testing.T) {
	long := "this phrase is definitely going to be longer than fifty characters total"
	got := UserPhrases("ab, " + long + ", okay phrase")
	if !reflect.DeepEqual(got, []string{"okay phrase"}) {
		t.Fatalf("UserPhrases() = %q", got)
	}
}

func TestBasicSplit_SecondaryCapped(t *testing.T) {
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa"
	kw := BasicSplit(text)
	if len(kw.Primary) != 5 || len(kw.Secondary) != 10 {
		t.Fatalf("primary=%d secondary=%d", len(kw.Primary), len(kw.Secondary))
	}
	if kw.Primary[0] != "alpha" || kw.Secondary[0] != "foxtrot" {
		t.Fatalf("unexpected order %q %q", kw.Primary, kw.Secondary)
	}
}

func TestLLMSource(t *testing.T) {
	src := NewLLMSource(&mockCompleter{reply: "```json\n{\"primary\":[\"p1\"],\"secondary\":[\"s1\"],\"exclude\":[\"e1\"],\"search_context\":\"ctx\"}\n```"})
	kw, err := src.ExtractKeywords(context.Background(), nil, model.Hypothesis{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if kw.Primary[0] != "p1" || kw.Exclude[0] != "e1" || kw.SearchContext != "ctx" {
		t.Fatalf("unexpected %+v", kw)
	}

	bad := NewLLMSource(&mockCompleter{reply: "not json"})
	if _, err := bad.ExtractKeywords(context.Background(), nil, model.Hypothesis{Text: "x"}); err == nil {
		t.Fatal("expected parse error")
	}
}
