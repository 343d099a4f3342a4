package workflow

import (
	"fmt"
	"strings"

	"github.com/ashureev/inspectbot/internal/chat"
)

// Commands recognised in message text. Matching is exact.
const (
	CommandStart = "/start"
	CommandHelp  = "/help"
	CommandAbout = "/about"
)

// Action payloads and payload prefixes.
const (
	PayloadStartInline = "start_inline"
	PayloadAbout       = "about_bot"
	PayloadHelp        = "help_inline"
	PayloadGenerate    = "generate"
	PayloadBack        = "back"
	prefixItem         = "item:"
	prefixSet          = "set:"
	prefixComment      = "comment:"
)

const (
	menuText = "Начинаем обследование. Выберите пункт:\n" +
		"✅ - соответствует, ❌ - не соответствует, ⏳ - не заполнено"

	commentPromptText = "✍️ Отправьте текст комментария для этого пункта."
	generatingText    = "⏳ Генерирую отчёт..."
	reportFailedText  = "❌ Произошла ошибка при генерации отчёта."

	aboutText = `🏗️ *Бот для проведения аудита*

*Что умеет этот бот:*

📋 *Проведение проверок*
- Систематизированный чек-лист по всем ключевым параметрам фундамента
- Поэтапное заполнение каждого пункта

✅ *Интуитивный интерфейс*
- Встроенные клавиатуры для быстрых ответов
- Статусы выполнения в реальном времени
- Возможность добавления комментариев

📊 *Автоматическая отчетность*
- Генерация актов в формате Word
- Структурированные таблицы с результатами проверки

💾 *Надежное хранение*
- Все данные сохраняются в базе
- История проведенных проверок

*Основные команды:*
/start - начать новую проверку
/help - помощь по использованию
/about - информация о боте

*Для начала работы просто нажмите "Начать проверку"*`

	helpText = `🆘 *Помощь по использованию бота*

*Как работать с ботом:*

1. *Начало работы*
   - Нажмите /start для создания новой проверки
   - Или выберите пункт из активного меню

2. *Заполнение пунктов*
   - Нажмите на любой пункт для его заполнения
   - Выберите ✅ Да или ❌ Нет
   - Добавьте комментарий если нужно

3. *Генерация отчета*
   - Когда все пункты заполнены - нажмите "Генерировать отчёт"
   - Получите готовый Word-документ

*Статусы пунктов:*
✅ - соответствует требованиям
❌ - не соответствует требованиям
⏳ - не заполнено

*Команды:*
/start - начать проверку
/help - эта справка
/about - информация о боте

*Если что-то не работает:*
- Убедитесь, что все пункты заполнены перед генерацией отчета
- При проблемах - начните заново командой /start`
)

func welcomeText(n int) string {
	return fmt.Sprintf(`🏗️ *Бот для обследования фундамента*

*Кратко о возможностях:*

✅ *Проверка фундамента* по %d ключевым параметрам
📝 *Добавление комментариев* к каждому пункту
📊 *Генерация актов* в формате Word
💾 *Сохранение истории* проверок

*Бот готов к работе! Выберите действие ниже:*`, n)
}

func introText(questions []string) string {
	var b strings.Builder
	b.WriteString("👋 *Начинаем проверку!*\n\n")
	fmt.Fprintf(&b, "Заполните все %d пунктов проверки:\n", len(questions))
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, chat.EscapeMarkdown(q))
	}
	b.WriteString("\n*После заполнения всех пунктов вы получите готовый акт в Word формате!*")
	return b.String()
}

func commentSavedText(position int) string {
	return fmt.Sprintf("✅ Комментарий для пункта %d сохранён.", position)
}

func answerSetText(position int, answer string) string {
	return fmt.Sprintf("✅ Ответ для пункта %d установлен: %s", position, answer)
}

func incompleteText(position int) string {
	return fmt.Sprintf("❌ Не все пункты заполнены: Не заполнен пункт %d\n"+
		"Заполните все пункты перед генерацией отчёта.", position)
}

func reportCaption(inspectionID int64) string {
	return fmt.Sprintf("📊 Отчёт по проверке #%d", inspectionID)
}
