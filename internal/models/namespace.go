package models

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Namespace определяет логический раздел хранилища swarm.
// Каждому типу конфигурации соответствует свой namespace,
// числовые значения совпадают с номерами namespace на storage-узлах.
type Namespace int

const (
	NamespaceUserProfile       Namespace = 2
	NamespaceContacts          Namespace = 3
	NamespaceConvoInfoVolatile Namespace = 4
	NamespaceUserGroups        Namespace = 5
	NamespaceGroupKeys         Namespace = 12
	NamespaceGroupInfo         Namespace = 13
	NamespaceGroupMembers      Namespace = 14
)

// AllNamespaces перечисляет все известные namespace в порядке возрастания номера.
var AllNamespaces = []Namespace{
	NamespaceUserProfile,
	NamespaceContacts,
	NamespaceConvoInfoVolatile,
	NamespaceUserGroups,
	NamespaceGroupKeys,
	NamespaceGroupInfo,
	NamespaceGroupMembers,
}

// UserNamespaces перечисляет namespace, принадлежащие аккаунту пользователя.
var UserNamespaces = []Namespace{
	NamespaceUserProfile,
	NamespaceContacts,
	NamespaceConvoInfoVolatile,
	NamespaceUserGroups,
}

var namespaceNames = map[Namespace]string{
	NamespaceUserProfile:       "user_profile",
	NamespaceContacts:          "contacts",
	NamespaceConvoInfoVolatile: "convo_info_volatile",
	NamespaceUserGroups:        "user_groups",
	NamespaceGroupKeys:         "group_keys",
	NamespaceGroupInfo:         "group_info",
	NamespaceGroupMembers:      "group_members",
}

// String возвращает человекочитаемое имя namespace.
func (n Namespace) String() string {
	if name, ok := namespaceNames[n]; ok {
		return name
	}
	return "namespace_" + strconv.Itoa(int(n))
}

// Valid сообщает, известен ли namespace.
func (n Namespace) Valid() bool {
	_, ok := namespaceNames[n]
	return ok
}

// IsGroupNamespace возвращает true для namespace, которые хранятся в swarm группы,
// а не в swarm пользователя.
func (n Namespace) IsGroupNamespace() bool {
	return n == NamespaceGroupKeys || n == NamespaceGroupInfo || n == NamespaceGroupMembers
}

// ParseNamespace разбирает namespace из имени ("contacts") или номера ("3").
func ParseNamespace(s string) (Namespace, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if num, err := strconv.Atoi(s); err == nil {
		ns := Namespace(num)
		if !ns.Valid() {
			return 0, errors.Newf("unknown namespace number %d", num)
		}
		return ns, nil
	}
	for ns, name := range namespaceNames {
		if name == s {
			return ns, nil
		}
	}
	return 0, errors.Newf("unknown namespace %q", s)
}
