// Package cli реализует инструмент командной строки HookRelay.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с HookRelay API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для регистрации workflows, просмотра runs и
// отправки тестовых webhook-доставок.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для HookRelay API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Webhook-эндпоинт — особый случай: его ответ
// плоский, без data-envelope.
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: hookrelay run list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, create, show
//   - run: list, show
//   - trigger: отправка тестовой доставки на trigger_key
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
