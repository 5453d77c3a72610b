package configstore

import (
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
)

// Профиль - единственная запись с пустым ключом
const (
	profileKey      = ""
	profileName     = "n"
	profilePicURL   = "p"
	profilePicKey   = "q"
	profilePriority = "+"
)

// UserProfile - типизированное представление namespace UserProfile.
type UserProfile struct {
	obj *Object
}

// NewUserProfile создает представление поверх объекта namespace UserProfile.
func NewUserProfile(obj *Object) *UserProfile {
	return &UserProfile{obj: obj}
}

// Object возвращает объект конфигурации представления.
func (p *UserProfile) Object() *Object {
	return p.obj
}

// Get возвращает профиль. Незаданный профиль возвращается пустым.
func (p *UserProfile) Get() (*models.UserProfile, error) {
	profile, found, err := lookup(p.obj, profileKey, decodeProfile)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.UserProfile{}, nil
	}
	return profile, nil
}

// Set записывает профиль целиком.
func (p *UserProfile) Set(profile *models.UserProfile) error {
	return p.obj.Edit(func(tx *Tx) error {
		tx.Set(profileKey, profileName, []byte(profile.Name))
		tx.Set(profileKey, profilePicURL, []byte(profile.Picture.URL))
		tx.Set(profileKey, profilePicKey, profile.Picture.Key)
		tx.Set(profileKey, profilePriority, encodeInt(profile.NoteToSelfPriority))
		return nil
	})
}

// SetName меняет отображаемое имя.
func (p *UserProfile) SetName(name string) error {
	return p.obj.Edit(func(tx *Tx) error {
		tx.Set(profileKey, profileName, []byte(name))
		return nil
	})
}

// SetPicture меняет аватар. Пустой ProfilePicture удаляет аватар.
func (p *UserProfile) SetPicture(pic models.ProfilePicture) error {
	return p.obj.Edit(func(tx *Tx) error {
		tx.Set(profileKey, profilePicURL, []byte(pic.URL))
		tx.Set(profileKey, profilePicKey, pic.Key)
		return nil
	})
}

func decodeProfile(_ string, r *crdt.Record) *models.UserProfile {
	return &models.UserProfile{
		Name: string(value(r, profileName)),
		Picture: models.ProfilePicture{
			URL: string(value(r, profilePicURL)),
			Key: clone(value(r, profilePicKey)),
		},
		NoteToSelfPriority: decodeInt(value(r, profilePriority)),
	}
}
