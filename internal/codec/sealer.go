package codec

import (
	"crypto/ed25519"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
)

// Формат сообщения определяется первым байтом
const (
	formatEncrypted byte = 'e'
	formatPlain     byte = 'p'
)

// Номера полей конверта
const (
	envNamespaceNum protowire.Number = 1
	envSeqnoNum     protowire.Number = 2
	envBodyNum      protowire.Number = 3
	envSignatureNum protowire.Number = 4
)

// Message - разобранное и проверенное сообщение конфигурации.
type Message struct {
	Document  *crdt.Document
	Namespace models.Namespace
	Seqno     int64
}

// Sealer упаковывает документы конфигурации одного namespace в подписанные
// (и при наличии ключа зашифрованные) сообщения и выполняет обратное преобразование.
type Sealer struct {
	// SigningKey - ключ подписи исходящих сообщений (ключ пользователя или админ-ключ группы)
	SigningKey ed25519.PrivateKey
	// Limits - ограничения размера полей, проверяемые до подписи
	Limits Limits
	// VerifyKeys - ключи, подпись любым из которых принимается
	VerifyKeys []ed25519.PublicKey
	// EncryptionKey - симметричный ключ namespace; nil - без шифрования
	EncryptionKey []byte
	Namespace     models.Namespace
}

// Sign подписывает данные ключом Ed25519.
func Sign(data []byte, key ed25519.PrivateKey) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.Wrap(ErrSigningFailed, "no signing key available")
	}
	return ed25519.Sign(key, data), nil
}

// Seal сериализует документ, подписывает его и шифрует.
// Результат детерминирован: одинаковые (seqno, документ) дают одинаковые байты.
func (s *Sealer) Seal(seqno int64, doc *crdt.Document) ([]byte, error) {
	if err := s.Limits.Check(doc); err != nil {
		return nil, err
	}

	body := EncodeDocument(doc)
	if len(body) > MaxPayloadSize {
		return nil, errors.Wrapf(ErrFieldTooLarge, "payload is %d bytes, max %d", len(body), MaxPayloadSize)
	}

	signed := appendSigned(nil, s.Namespace, seqno, body)
	sig, err := Sign(signed, s.SigningKey)
	if err != nil {
		return nil, err
	}

	envelope := protowire.AppendTag(signed, envSignatureNum, protowire.BytesType)
	envelope = protowire.AppendBytes(envelope, sig)

	if s.EncryptionKey == nil {
		return append([]byte{formatPlain}, envelope...), nil
	}

	sealed, err := crypto.SealDeterministic(envelope, s.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt payload")
	}
	return append([]byte{formatEncrypted}, sealed...), nil
}

// Open расшифровывает сообщение, проверяет подпись и разбирает документ.
// Ошибки: ErrParse для поврежденных данных, ErrVerificationFailed для
// чужой подписи или нерасшифровываемых данных.
func (s *Sealer) Open(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, errors.Wrap(ErrParse, "empty payload")
	}

	var envelope []byte
	switch payload[0] {
	case formatEncrypted:
		if s.EncryptionKey == nil {
			return nil, errors.Wrap(ErrDecryptFailed, "no encryption key for namespace")
		}
		plain, err := crypto.OpenDeterministic(payload[1:], s.EncryptionKey)
		if err != nil {
			return nil, errors.Wrap(ErrDecryptFailed, err.Error())
		}
		envelope = plain
	case formatPlain:
		envelope = payload[1:]
	default:
		return nil, errors.Wrapf(ErrParse, "unknown payload format 0x%02x", payload[0])
	}

	env, err := parseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	if env.namespace != s.Namespace {
		return nil, errors.Wrapf(ErrVerificationFailed, "namespace %s, expected %s", env.namespace, s.Namespace)
	}
	signed := appendSigned(nil, env.namespace, env.seqno, env.body)
	if !s.verify(signed, env.signature) {
		return nil, errors.Wrap(ErrVerificationFailed, "bad signature")
	}

	doc, err := DecodeDocument(env.body)
	if err != nil {
		return nil, err
	}

	return &Message{Namespace: env.namespace, Seqno: env.seqno, Document: doc}, nil
}

func (s *Sealer) verify(data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	for _, key := range s.VerifyKeys {
		if len(key) == ed25519.PublicKeySize && ed25519.Verify(key, data, sig) {
			return true
		}
	}
	return false
}

// MessageHash возвращает хеш, под которым swarm хранит сообщение.
func MessageHash(payload []byte) string {
	return crypto.MessageHash(payload)
}

type envelope struct {
	body      []byte
	signature []byte
	seqno     int64
	namespace models.Namespace
}

func appendSigned(out []byte, ns models.Namespace, seqno int64, body []byte) []byte {
	out = protowire.AppendTag(out, envNamespaceNum, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(ns))
	out = protowire.AppendTag(out, envSeqnoNum, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(seqno))
	out = protowire.AppendTag(out, envBodyNum, protowire.BytesType)
	return protowire.AppendBytes(out, body)
}

func parseEnvelope(data []byte) (*envelope, error) {
	env := &envelope{}
	var hasBody bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, parseError(n, "envelope tag")
		}

		var m int
		switch {
		case num == envNamespaceNum && typ == protowire.VarintType:
			var v uint64
			v, m = protowire.ConsumeVarint(data[n:])
			env.namespace = models.Namespace(v)
		case num == envSeqnoNum && typ == protowire.VarintType:
			var v uint64
			v, m = protowire.ConsumeVarint(data[n:])
			env.seqno = int64(v)
		case num == envBodyNum && typ == protowire.BytesType:
			env.body, m = protowire.ConsumeBytes(data[n:])
			hasBody = true
		case num == envSignatureNum && typ == protowire.BytesType:
			env.signature, m = protowire.ConsumeBytes(data[n:])
		default:
			m = protowire.ConsumeFieldValue(num, typ, data[n:])
		}
		if m < 0 {
			return nil, parseError(m, "envelope field")
		}
		data = data[n+m:]
	}

	if !hasBody {
		return nil, errors.Wrap(ErrParse, "envelope without body")
	}
	if env.signature == nil {
		return nil, errors.Wrap(ErrVerificationFailed, "unsigned envelope")
	}
	if env.seqno < 0 {
		return nil, errors.Wrap(ErrParse, "negative seqno")
	}
	return env, nil
}
