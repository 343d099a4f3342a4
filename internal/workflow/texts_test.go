package workflow

import (
	"strings"
	"testing"
)

func TestIntroTextEscapesQuestions(t *testing.T) {
	got := introText([]string{"Трещины *более* 2_мм", "См. [схему] `A-1`"})

	for _, want := range []string{
		"1. Трещины \\*более\\* 2\\_мм\n",
		"2. См. \\[схему] \\`A-1\\`\n",
		"👋 *Начинаем проверку!*",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected intro to contain %q, got:\n%s", want, got)
		}
	}
}
