package workload

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog 按名称管理工作负载，初始包含内置负载
type Catalog struct {
	workloads map[string]*Workload
	builtin   map[string]bool
	mu        sync.RWMutex
}

// NewCatalog 创建包含内置工作负载的目录
func NewCatalog() *Catalog {
	c := &Catalog{
		workloads: make(map[string]*Workload),
		builtin:   make(map[string]bool),
	}
	for _, w := range Builtin() {
		c.workloads[w.Name] = w
		c.builtin[w.Name] = true
	}
	return c
}

// Add 校验并添加工作负载，名称不能与已有负载重复
func (c *Catalog) Add(w *Workload) error {
	if err := w.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.workloads[w.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkload, w.Name)
	}
	c.workloads[w.Name] = w
	return nil
}

// AddSpecs 编译并添加 YAML 定义的工作负载
func (c *Catalog) AddSpecs(specs []Spec) error {
	for i := range specs {
		w, err := specs[i].Compile()
		if err != nil {
			return err
		}
		if err := c.Add(w); err != nil {
			return err
		}
	}
	return nil
}

// Get 按名称获取工作负载
func (c *Catalog) Get(name string) (*Workload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.workloads[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkload, name)
	}
	return w, nil
}

// Has 是否存在指定名称的工作负载
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.workloads[name]
	return ok
}

// IsBuiltin 是否为内置工作负载
func (c *Catalog) IsBuiltin(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builtin[name]
}

// List 返回全部工作负载，内置在前，各自按名称排序
func (c *Catalog) List() []*Workload {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]*Workload, 0, len(c.workloads))
	for _, w := range c.workloads {
		list = append(list, w)
	}
	sort.Slice(list, func(i, j int) bool {
		bi, bj := c.builtin[list[i].Name], c.builtin[list[j].Name]
		if bi != bj {
			return bi
		}
		return list[i].Name < list[j].Name
	})
	return list
}
