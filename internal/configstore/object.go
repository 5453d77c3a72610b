package configstore

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
)

// State - состояние объекта конфигурации относительно swarm и локального dump.
type State int

const (
	// StateClean - объект совпадает и с swarm, и с последним dump
	StateClean State = iota
	// StateDirtyForPush - есть локальные изменения, не отправленные в swarm
	StateDirtyForPush
	// StateDirtyForDump - состояние изменилось с момента последнего dump
	StateDirtyForDump
	// StatePushing - push отправлен и ожидает подтверждения
	StatePushing
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirtyForPush:
		return "dirty_for_push"
	case StateDirtyForDump:
		return "dirty_for_dump"
	case StatePushing:
		return "pushing"
	default:
		return "unknown"
	}
}

// Sealer упаковывает документ в сообщение для swarm.
type Sealer interface {
	Seal(seqno int64, doc *crdt.Document) ([]byte, error)
}

// PushData - данные для отправки объекта в swarm.
type PushData struct {
	Payload        []byte
	ObsoleteHashes []string
	Seqno          int64
	Namespace      models.Namespace
}

// Remote - проверенное удаленное состояние объекта с его хешем в swarm.
type Remote struct {
	Document *crdt.Document
	Hash     string
	Seqno    int64
}

// MergeOutcome - результат слияния.
type MergeOutcome struct {
	Changed  []string // ключи записей, изменившихся в результате слияния
	Current  []string
	Obsolete []string
	Seqno    int64
}

// Object - объект конфигурации: документ одного namespace одного владельца
// вместе с состоянием синхронизации.
// Все изменения выполняются под эксклюзивной блокировкой объекта.
type Object struct {
	doc         *crdt.Document
	clock       *crdt.SeqnoClock
	policy      crdt.PolicyFunc
	current     hashSet
	obsolete    hashSet
	dumpUnknown []byte
	owner       string
	cleanDigest string // digest документа, соответствующего current
	pushDigest  string // digest документа в push, ожидающем подтверждения
	generation  uint64
	dumpedGen   uint64
	mu          sync.RWMutex
	namespace   models.Namespace
	pushing     bool
	destroyed   bool
}

// NewObject создает пустой объект конфигурации.
func NewObject(namespace models.Namespace, owner string) *Object {
	doc := crdt.NewDocument()
	return &Object{
		namespace:   namespace,
		owner:       owner,
		doc:         doc,
		clock:       crdt.NewSeqnoClock(0),
		policy:      PolicyFor(namespace),
		current:     make(hashSet),
		obsolete:    make(hashSet),
		cleanDigest: documentDigest(doc),
	}
}

// PolicyFor возвращает правила разрешения конфликтов для namespace.
func PolicyFor(namespace models.Namespace) crdt.PolicyFunc {
	if namespace == models.NamespaceConvoInfoVolatile {
		return volatilePolicy
	}
	return crdt.DefaultPolicy
}

// Namespace возвращает namespace объекта.
func (o *Object) Namespace() models.Namespace {
	return o.namespace
}

// Owner возвращает публичный ключ владельца (пользователя или группы).
func (o *Object) Owner() string {
	return o.owner
}

// Seqno возвращает последний подтвержденный seqno.
func (o *Object) Seqno() int64 {
	return o.clock.Confirmed()
}

// CurrentHashes возвращает хеши сообщений, представляющих текущее состояние в swarm.
func (o *Object) CurrentHashes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.current.sorted()
}

// ObsoleteHashes возвращает хеши, подлежащие удалению из swarm.
func (o *Object) ObsoleteHashes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.obsolete.sorted()
}

// NeedsPush сообщает, что локальное состояние отличается от подтвержденного в swarm.
func (o *Object) NeedsPush() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return !o.destroyed && o.needsPushLocked()
}

// NeedsDump сообщает, что состояние изменилось с момента последнего dump.
func (o *Object) NeedsDump() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return !o.destroyed && o.generation != o.dumpedGen
}

// State возвращает текущее состояние объекта.
func (o *Object) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()

	switch {
	case o.pushing:
		return StatePushing
	case o.destroyed:
		return StateClean
	case o.needsPushLocked():
		return StateDirtyForPush
	case o.generation != o.dumpedGen:
		return StateDirtyForDump
	default:
		return StateClean
	}
}

// Edit выполняет транзакцию над документом.
// Изменения применяются только если fn вернула nil.
// Внутри fn нельзя вызывать другие методы объекта.
func (o *Object) Edit(fn func(tx *Tx) error) error {
	if o == nil {
		return ErrNilConfigObject
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.check(); err != nil {
		return err
	}

	tx := &Tx{doc: o.doc.Clone(), seqno: o.clock.Next(), changed: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.changed) == 0 {
		return nil
	}

	o.doc = tx.doc
	o.generation++
	return nil
}

// View выполняет fn с документом под блокировкой на чтение.
// Документ нельзя изменять и сохранять за пределами fn.
func (o *Object) View(fn func(doc *crdt.Document) error) error {
	if o == nil {
		return ErrNilConfigObject
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if err := o.check(); err != nil {
		return err
	}
	return fn(o.doc)
}

// ComputePush готовит данные для push.
// Seqno увеличивается на единицу относительно подтвержденного; повторные вызовы
// до подтверждения возвращают тот же seqno.
func (o *Object) ComputePush(sealer Sealer) (*PushData, error) {
	if o == nil {
		return nil, ErrNilConfigObject
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.check(); err != nil {
		return nil, err
	}
	if !o.pushing && !o.needsPushLocked() {
		return nil, ErrNotDirty
	}

	wasPushing := o.pushing
	seqno := o.clock.BeginPush()
	payload, err := sealer.Seal(seqno, o.doc)
	if err != nil {
		if !wasPushing {
			o.clock.Abort()
		}
		return nil, errors.Wrapf(err, "failed to seal %s", o.namespace)
	}

	o.pushing = true
	o.pushDigest = documentDigest(o.doc)

	// Новое сообщение заменяет все текущие, они удаляются в том же запросе
	superseded := make(hashSet, len(o.obsolete)+len(o.current))
	for h := range o.obsolete {
		superseded[h] = struct{}{}
	}
	for h := range o.current {
		superseded[h] = struct{}{}
	}

	return &PushData{
		Namespace:      o.namespace,
		Seqno:          seqno,
		Payload:        payload,
		ObsoleteHashes: superseded.sorted(),
	}, nil
}

// ConfirmPush фиксирует успешный push.
// deleted - хеши, удаление которых swarm подтвердил; остальные устаревшие хеши
// сохраняются для повторной попытки удаления.
func (o *Object) ConfirmPush(seqno int64, hash string, deleted []string) error {
	if o == nil {
		return ErrNilConfigObject
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.check(); err != nil {
		return err
	}
	if !o.pushing {
		return ErrNotPushing
	}
	if err := o.clock.Confirm(seqno); err != nil {
		return err
	}

	for h := range o.current {
		if h != hash {
			o.obsolete[h] = struct{}{}
		}
	}
	for _, h := range deleted {
		delete(o.obsolete, h)
	}
	delete(o.obsolete, hash)
	o.current = hashSet{hash: {}}

	o.cleanDigest = o.pushDigest
	o.pushDigest = ""
	o.pushing = false
	o.generation++
	return nil
}

// PushFailed отменяет push; изменения будут отправлены в следующий раз с тем же seqno.
func (o *Object) PushFailed(seqno int64) error {
	if o == nil {
		return ErrNilConfigObject
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.check(); err != nil {
		return err
	}
	pending, ok := o.clock.Pending()
	if !o.pushing || !ok {
		return ErrNotPushing
	}
	if pending != seqno {
		return errors.Wrapf(ErrSeqnoMismatch, "pending %d, failed %d", pending, seqno)
	}

	o.clock.Abort()
	o.pushing = false
	o.pushDigest = ""
	return nil
}

// ForgetObsolete убирает хеши, удаленные из swarm вне цикла push.
func (o *Object) ForgetObsolete(hashes []string) error {
	if o == nil {
		return ErrNilConfigObject
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.check(); err != nil {
		return err
	}
	changed := false
	for _, h := range hashes {
		if _, ok := o.obsolete[h]; ok {
			delete(o.obsolete, h)
			changed = true
		}
	}
	if changed {
		o.generation++
	}
	return nil
}

// Merge вливает удаленные состояния в объект.
// Результат не зависит от порядка remotes и от повторного слияния тех же данных.
// Удаленное сообщение остается в current, пока хотя бы одно его поле
// совпадает с итоговым значением; иначе его хеш становится устаревшим.
func (o *Object) Merge(remotes []Remote) (*MergeOutcome, error) {
	if o == nil {
		return nil, ErrNilConfigObject
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.check(); err != nil {
		return nil, err
	}

	sorted := make([]Remote, 0, len(remotes))
	for _, r := range remotes {
		if r.Document != nil {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })

	changedSet := make(map[string]struct{})
	for _, r := range sorted {
		for _, key := range o.doc.Merge(r.Document, o.policy) {
			changedSet[key] = struct{}{}
		}
		o.clock.Observe(r.Seqno)
	}

	prevCurrent, prevObsolete := o.current.clone(), o.obsolete.clone()
	matching := make(hashSet)
	for _, r := range sorted {
		if r.Document.Equal(o.doc) {
			matching[r.Hash] = struct{}{}
		}
	}

	if len(matching) > 0 {
		// Итог совпадает с удаленным состоянием: push не нужен,
		// все остальные сообщения устарели
		for h := range o.current {
			if _, ok := matching[h]; !ok {
				o.obsolete[h] = struct{}{}
			}
		}
		for _, r := range sorted {
			if _, ok := matching[r.Hash]; !ok {
				o.obsolete[r.Hash] = struct{}{}
			}
		}
		o.current = matching
		for h := range matching {
			delete(o.obsolete, h)
		}
		o.cleanDigest = documentDigest(o.doc)
	} else {
		for _, r := range sorted {
			if o.doc.Contributes(r.Document) {
				o.current[r.Hash] = struct{}{}
				delete(o.obsolete, r.Hash)
				continue
			}
			delete(o.current, r.Hash)
			o.obsolete[r.Hash] = struct{}{}
		}
	}

	if len(changedSet) > 0 || !prevCurrent.equal(o.current) || !prevObsolete.equal(o.obsolete) {
		o.generation++
	}

	changed := make([]string, 0, len(changedSet))
	for key := range changedSet {
		changed = append(changed, key)
	}
	sort.Strings(changed)

	return &MergeOutcome{
		Changed:  changed,
		Current:  o.current.sorted(),
		Obsolete: o.obsolete.sorted(),
		Seqno:    o.clock.Confirmed(),
	}, nil
}

// Destroy освобождает объект. Любая последующая операция вернет ErrNilConfigObject.
func (o *Object) Destroy() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.destroyed = true
	o.doc = nil
	o.pushing = false
}

func (o *Object) check() error {
	if o == nil || o.destroyed || o.doc == nil {
		return ErrNilConfigObject
	}
	return nil
}

func (o *Object) needsPushLocked() bool {
	return documentDigest(o.doc) != o.cleanDigest
}

func documentDigest(doc *crdt.Document) string {
	return crypto.Digest(codec.EncodeDocument(doc))
}

// Tx - транзакция над документом объекта.
// Все записи транзакции получают один и тот же seqno.
type Tx struct {
	doc     *crdt.Document
	changed map[string]struct{}
	seqno   int64
}

// Set записывает значение поля. Пустое значение отсутствующего поля не записывается.
func (tx *Tx) Set(key, name string, v []byte) {
	if _, ok := tx.doc.Field(key, name); !ok && len(v) == 0 {
		return
	}
	if tx.doc.Set(key, name, v, tx.seqno) {
		tx.changed[key] = struct{}{}
	}
}

// Get возвращает значение поля.
func (tx *Tx) Get(key, name string) []byte {
	f, _ := tx.doc.Field(key, name)
	return f.Value
}

// Record возвращает запись (только для чтения).
func (tx *Tx) Record(key string) (*crdt.Record, bool) {
	return tx.doc.Record(key)
}

// Keys возвращает ключи всех записей.
func (tx *Tx) Keys() []string {
	return tx.doc.Keys()
}

// Delete физически удаляет запись.
func (tx *Tx) Delete(key string) bool {
	if tx.doc.Delete(key) {
		tx.changed[key] = struct{}{}
		return true
	}
	return false
}

// Changed возвращает ключи записей, измененных транзакцией.
func (tx *Tx) Changed() []string {
	keys := make([]string, 0, len(tx.changed))
	for key := range tx.changed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type hashSet map[string]struct{}

func (s hashSet) sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (s hashSet) clone() hashSet {
	out := make(hashSet, len(s))
	for h := range s {
		out[h] = struct{}{}
	}
	return out
}

func (s hashSet) equal(other hashSet) bool {
	if len(s) != len(other) {
		return false
	}
	for h := range s {
		if _, ok := other[h]; !ok {
			return false
		}
	}
	return true
}
