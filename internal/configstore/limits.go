package configstore

import (
	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/models"
)

// LimitsFor возвращает ограничения размеров полей для namespace.
// Ограничения проверяются кодеком до подписи сообщения.
func LimitsFor(namespace models.Namespace) codec.Limits {
	switch namespace {
	case models.NamespaceContacts:
		return codec.Limits{
			contactName:     models.MaxNameLength,
			contactNickname: models.MaxNicknameLength,
			contactPicURL:   models.MaxProfileURLLength,
			contactPicKey:   models.ProfileKeyLength,
		}
	case models.NamespaceUserGroups:
		return codec.Limits{
			groupName:        models.MaxNameLength,
			groupEncPub:      models.GroupEncKeyLength,
			groupEncSec:      models.GroupEncKeyLength,
			communityBaseURL: models.MaxCommunityURLLength,
			communityRoom:    models.MaxCommunityRoomLength,
			communityPubKey:  models.CommunityPubKeyLength,
		}
	case models.NamespaceUserProfile:
		return codec.Limits{
			profileName:   models.MaxNameLength,
			profilePicURL: models.MaxProfileURLLength,
			profilePicKey: models.ProfileKeyLength,
		}
	case models.NamespaceConvoInfoVolatile:
		return codec.Limits{
			volatileBaseURL: models.MaxCommunityURLLength,
			volatileRoom:    models.MaxCommunityRoomLength,
			volatilePubKey:  models.CommunityPubKeyLength,
		}
	default:
		return nil
	}
}
