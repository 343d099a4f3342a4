package workflow

import (
	"fmt"
	"strings"

	"github.com/ashureev/inspectbot/internal/chat"
	"github.com/ashureev/inspectbot/internal/domain"
)

func welcomeKeyboard() chat.Keyboard {
	return chat.Keyboard{}.
		Row(
			chat.Button{Text: "🚀 Начать проверку", Payload: PayloadStartInline},
			chat.Button{Text: "ℹ️ О боте", Payload: PayloadAbout},
		).
		Row(chat.Button{Text: "📖 Инструкция", Payload: PayloadHelp})
}

// mainMenuKeyboard lists every item with its status glyph, then the report
// and about actions.
func mainMenuKeyboard(items []domain.Item) chat.Keyboard {
	kb := make(chat.Keyboard, 0, len(items)+2)
	for _, it := range items {
		kb = kb.Row(chat.Button{
			Text:    fmt.Sprintf("%s %d. %s", it.StatusGlyph(), it.Index+1, it.Question),
			Payload: fmt.Sprintf("%s%d", prefixItem, it.Index),
		})
	}
	return kb.
		Row(chat.Button{Text: "📊 Генерировать отчёт", Payload: PayloadGenerate}).
		Row(chat.Button{Text: "ℹ️ О боте", Payload: PayloadAbout})
}

func itemKeyboard(index int) chat.Keyboard {
	return chat.Keyboard{}.
		Row(
			chat.Button{Text: "✅ Да", Payload: fmt.Sprintf("%s%d:%s", prefixSet, index, domain.AnswerYes)},
			chat.Button{Text: "❌ Нет", Payload: fmt.Sprintf("%s%d:%s", prefixSet, index, domain.AnswerNo)},
		).
		Row(chat.Button{Text: "📝 Добавить комментарий", Payload: fmt.Sprintf("%s%d", prefixComment, index)}).
		Row(chat.Button{Text: "🔙 Назад к списку", Payload: PayloadBack})
}

// itemDetailText renders the question followed by the current answer and comment, if any.
func itemDetailText(it domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Пункт %d: %s", it.Index+1, it.Question)
	if it.Answer != nil {
		fmt.Fprintf(&b, "\n\nТекущий статус: %s", *it.Answer)
	}
	if it.Comment != nil && *it.Comment != "" {
		fmt.Fprintf(&b, "\nКомментарий: %s", *it.Comment)
	}
	return b.String()
}
