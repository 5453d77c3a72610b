package configstore

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/models"
)

// Key идентифицирует объект конфигурации в реестре.
type Key struct {
	Owner     string
	Namespace models.Namespace
}

// Registry - объекты конфигурации одной учетной записи.
// Создается при разблокировке учетной записи и закрывается при выходе.
type Registry struct {
	objects map[Key]*Object
	logger  *zap.Logger
	owner   string
	mu      sync.RWMutex
}

// NewRegistry создает пустой реестр для учетной записи owner.
func NewRegistry(owner string, logger *zap.Logger) *Registry {
	return &Registry{
		objects: make(map[Key]*Object),
		logger:  logger,
		owner:   owner,
	}
}

// Owner возвращает публичный ключ учетной записи.
func (r *Registry) Owner() string {
	return r.owner
}

// Get возвращает объект, если он существует.
func (r *Registry) Get(namespace models.Namespace, owner string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[Key{Namespace: namespace, Owner: owner}]
	return obj, ok
}

// GetOrConstruct возвращает объект или создает пустой.
func (r *Registry) GetOrConstruct(namespace models.Namespace, owner string) *Object {
	key := Key{Namespace: namespace, Owner: owner}

	r.mu.RLock()
	obj, ok := r.objects[key]
	r.mu.RUnlock()
	if ok {
		return obj
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if obj, ok := r.objects[key]; ok {
		return obj
	}
	obj = NewObject(namespace, owner)
	r.objects[key] = obj
	r.logger.Debug("config object created",
		zap.String("namespace", namespace.String()),
		zap.String("owner", owner))
	return obj
}

// Restore восстанавливает объект из dump и регистрирует его,
// заменяя существующий объект с тем же ключом.
func (r *Registry) Restore(data []byte) (*Object, error) {
	obj, err := Restore(data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{Namespace: obj.Namespace(), Owner: obj.Owner()}
	if old, ok := r.objects[key]; ok && old != obj {
		old.Destroy()
	}
	r.objects[key] = obj

	r.logger.Debug("config object restored",
		zap.String("namespace", obj.Namespace().String()),
		zap.String("owner", obj.Owner()),
		zap.Int64("seqno", obj.Seqno()))
	return obj, nil
}

// Objects возвращает все объекты, упорядоченные по владельцу и namespace.
func (r *Registry) Objects() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Object, 0, len(r.objects))
	for _, obj := range r.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner() != out[j].Owner() {
			return out[i].Owner() < out[j].Owner()
		}
		return out[i].Namespace() < out[j].Namespace()
	})
	return out
}

// NeedsPush возвращает объекты с неотправленными изменениями.
func (r *Registry) NeedsPush() []*Object {
	var out []*Object
	for _, obj := range r.Objects() {
		if obj.NeedsPush() {
			out = append(out, obj)
		}
	}
	return out
}

// NeedsDump возвращает объекты, состояние которых не сохранено.
func (r *Registry) NeedsDump() []*Object {
	var out []*Object
	for _, obj := range r.Objects() {
		if obj.NeedsDump() {
			out = append(out, obj)
		}
	}
	return out
}

// Remove уничтожает объект и удаляет его из реестра.
func (r *Registry) Remove(namespace models.Namespace, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{Namespace: namespace, Owner: owner}
	if obj, ok := r.objects[key]; ok {
		obj.Destroy()
		delete(r.objects, key)
	}
}

// Close уничтожает все объекты.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, obj := range r.objects {
		obj.Destroy()
		delete(r.objects, key)
	}
}

// Contacts возвращает представление контактов учетной записи.
func (r *Registry) Contacts() *Contacts {
	return NewContacts(r.GetOrConstruct(models.NamespaceContacts, r.owner))
}

// UserGroups возвращает представление групп учетной записи.
func (r *Registry) UserGroups() *UserGroups {
	return NewUserGroups(r.GetOrConstruct(models.NamespaceUserGroups, r.owner))
}

// UserProfile возвращает представление профиля учетной записи.
func (r *Registry) UserProfile() *UserProfile {
	return NewUserProfile(r.GetOrConstruct(models.NamespaceUserProfile, r.owner))
}

// ConvoInfoVolatile возвращает представление состояний прочтения учетной записи.
func (r *Registry) ConvoInfoVolatile() *ConvoInfoVolatile {
	return NewConvoInfoVolatile(r.GetOrConstruct(models.NamespaceConvoInfoVolatile, r.owner))
}
