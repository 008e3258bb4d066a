package domain

import (
	"fmt"
	"time"

	"github.com/shaiso/Flowline/internal/xjson"
)

// Flow — документ рабочего процесса, созданный в визуальном редакторе.
//
// Flow — это ориентированный граф: узлы (Nodes) выполняют действия,
// рёбра (Edges) определяют порядок и ветвление.
// Движок получает документ целиком и на время run работает с его копией.
type Flow struct {
	// ID — идентификатор flow (задаётся редактором).
	ID string `json:"id"`

	// Name — человекочитаемое имя flow.
	Name string `json:"name,omitempty"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// IsActive — флаг активности. Неактивные flows не запускаются по расписанию.
	IsActive bool `json:"isActive,omitempty"`

	// Nodes — узлы в порядке их объявления.
	// Порядок важен: entry-узлы запускаются в этом порядке.
	Nodes []Node `json:"nodes"`

	// Edges — рёбра в порядке их объявления.
	// При нескольких рёбрах с одним handle побеждает первое.
	Edges []Edge `json:"edges"`

	// CreatedAt — время создания (заполняется хранилищем).
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	// UpdatedAt — время последнего сохранения.
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Edge — направленная связь между узлами.
type Edge struct {
	// ID — идентификатор ребра.
	ID string `json:"id"`

	// Source — ID узла-источника.
	Source string `json:"source"`

	// SourceHandle — выход узла-источника: "true"/"false" для ifElse,
	// "body"/"complete" для loop. Пустая строка — выход по умолчанию.
	SourceHandle string `json:"sourceHandle,omitempty"`

	// Target — ID целевого узла.
	Target string `json:"target"`
}

// Position — координаты узла на холсте редактора.
// Движок их не использует, но сохраняет при round-trip.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ParseFlow декодирует документ flow из JSON.
func ParseFlow(data []byte) (*Flow, error) {
	var f Flow
	if err := xjson.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &f, nil
}

// Node возвращает узел по ID.
func (f *Flow) Node(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// Clone возвращает глубокую копию flow.
//
// Run работает со снимком документа: правки в редакторе
// во время выполнения на него не влияют.
func (f *Flow) Clone() (*Flow, error) {
	data, err := xjson.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot flow: %w", err)
	}
	return ParseFlow(data)
}

// CronDirectives возвращает delay-узлы с типом cron.
// Используется scheduler'ом для синхронизации расписаний.
func (f *Flow) CronDirectives() []*Node {
	var nodes []*Node
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if cfg, ok := n.Config.(*DelayConfig); ok && cfg.DelayType == DelayCron {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
