package database

import (
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/fieldcrypt"
	"storefront/internal/models"
)

// paymentDocument is the stored form of a payment. References and dates stay
// in clear; every sensitive scalar lives encrypted under sealed, and the
// fields that are filtered on carry a blind index under idx.
type paymentDocument struct {
	ID                       primitive.ObjectID  `bson:"_id,omitempty"`
	PaymentBy                primitive.ObjectID  `bson:"paymentBy"`
	OrderID                  *primitive.ObjectID `bson:"orderId,omitempty"`
	PaymentRefundBy          *primitive.ObjectID `bson:"paymentRefundBy,omitempty"`
	TransactionDateAndTime   time.Time           `bson:"transactionDateAndTime"`
	PaymentRefundDateAndTime *time.Time          `bson:"paymentRefundDateAndTime,omitempty"`
	Sealed                   map[string]string   `bson:"sealed"`
	Index                    map[string]string   `bson:"idx"`
	CreatedAt                time.Time           `bson:"createdAt"`
	UpdatedAt                time.Time           `bson:"updatedAt"`
}

// sensitiveField describes one encrypted payment value. seal returns the
// ciphertext and the clear form used for the blind index, with ok false when
// the field is absent. open decrypts a stored value back into p.
type sensitiveField struct {
	key     string
	indexed bool
	seal    func(c *fieldcrypt.Cipher, p *models.Payment) (sealed, clear string, ok bool, err error)
	open    func(c *fieldcrypt.Cipher, p *models.Payment, sealed string) error
}

// textField seals a string reached through ref. ref may return nil when the
// value's parent is absent; alloc creates the parent on decode.
func textField(key string, indexed bool, ref func(p *models.Payment, alloc bool) *string) sensitiveField {
	return sensitiveField{
		key:     key,
		indexed: indexed,
		seal: func(c *fieldcrypt.Cipher, p *models.Payment) (string, string, bool, error) {
			v := ref(p, false)
			if v == nil || *v == "" {
				return "", "", false, nil
			}
			sealed, err := c.EncryptString(*v)
			return sealed, *v, true, err
		},
		open: func(c *fieldcrypt.Cipher, p *models.Payment, sealed string) error {
			value, err := c.DecryptString(sealed)
			if err != nil {
				return err
			}
			*ref(p, true) = value
			return nil
		},
	}
}

func stringField(key string, indexed bool, ref func(p *models.Payment) *string) sensitiveField {
	return textField(key, indexed, func(p *models.Payment, _ bool) *string { return ref(p) })
}

func floatField(key string, indexed bool, ref func(p *models.Payment) *float64) sensitiveField {
	return sensitiveField{
		key:     key,
		indexed: indexed,
		seal: func(c *fieldcrypt.Cipher, p *models.Payment) (string, string, bool, error) {
			v := *ref(p)
			sealed, err := c.EncryptFloat(v)
			return sealed, fieldcrypt.FormatFloat(v), true, err
		},
		open: func(c *fieldcrypt.Cipher, p *models.Payment, sealed string) error {
			value, err := c.DecryptFloat(sealed)
			if err != nil {
				return err
			}
			*ref(p) = value
			return nil
		},
	}
}

func refundAccountField(key string, ref func(a *models.RefundAccount) *string) sensitiveField {
	return textField(key, false, func(p *models.Payment, alloc bool) *string {
		if p.RefundAccount == nil {
			if !alloc {
				return nil
			}
			p.RefundAccount = &models.RefundAccount{}
		}
		return ref(p.RefundAccount)
	})
}

var paymentSensitiveFields = []sensitiveField{
	stringField("paymentMethod", true, func(p *models.Payment) *string { return &p.PaymentMethod }),
	stringField("paymentInfo", false, func(p *models.Payment) *string { return &p.PaymentInfo }),
	stringField("transactionId", true, func(p *models.Payment) *string { return &p.TransactionID }),
	floatField("amount", true, func(p *models.Payment) *float64 { return &p.Amount }),
	stringField("paymentStatus", true, func(p *models.Payment) *string { return &p.PaymentStatus }),
	floatField("refundAmount", false, func(p *models.Payment) *float64 { return &p.RefundAmount }),
	stringField("paymentRefundMethod", false, func(p *models.Payment) *string { return &p.PaymentRefundMethod }),
	stringField("paymentRefundInfo", false, func(p *models.Payment) *string { return &p.PaymentRefundInfo }),
	stringField("paymentRefundTransactionId", false, func(p *models.Payment) *string { return &p.PaymentRefundTransactionID }),
	stringField("paymentRefundStatus", false, func(p *models.Payment) *string { return &p.PaymentRefundStatus }),
	refundAccountField("refundAccountNumber", func(a *models.RefundAccount) *string { return &a.AccountNumber }),
	refundAccountField("refundIfscCode", func(a *models.RefundAccount) *string { return &a.IFSCCode }),
	refundAccountField("refundHolderName", func(a *models.RefundAccount) *string { return &a.HolderName }),
	refundAccountField("refundBankName", func(a *models.RefundAccount) *string { return &a.BankName }),
}

// paymentCodec converts between the decoded model and the stored document.
type paymentCodec struct {
	cipher *fieldcrypt.Cipher
}

func (c paymentCodec) encode(p *models.Payment) (*paymentDocument, error) {
	doc := &paymentDocument{
		ID:                       p.ID,
		PaymentBy:                p.PaymentBy,
		OrderID:                  p.OrderID,
		PaymentRefundBy:          p.PaymentRefundBy,
		TransactionDateAndTime:   p.TransactionDateAndTime,
		PaymentRefundDateAndTime: p.PaymentRefundDateAndTime,
		Sealed:                   map[string]string{},
		Index:                    map[string]string{},
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}
	for _, field := range paymentSensitiveFields {
		sealed, clear, ok, err := field.seal(c.cipher, p)
		if err != nil {
			return nil, errors.Wrapf(err, "encrypt %s", field.key)
		}
		if !ok {
			continue
		}
		doc.Sealed[field.key] = sealed
		if field.indexed {
			doc.Index[field.key] = c.cipher.BlindIndex(clear)
		}
	}
	return doc, nil
}

func (c paymentCodec) decode(doc *paymentDocument) (*models.Payment, error) {
	p := &models.Payment{
		ID:                       doc.ID,
		PaymentBy:                doc.PaymentBy,
		OrderID:                  doc.OrderID,
		PaymentRefundBy:          doc.PaymentRefundBy,
		TransactionDateAndTime:   doc.TransactionDateAndTime,
		PaymentRefundDateAndTime: doc.PaymentRefundDateAndTime,
		CreatedAt:                doc.CreatedAt,
		UpdatedAt:                doc.UpdatedAt,
	}
	for _, field := range paymentSensitiveFields {
		sealed, ok := doc.Sealed[field.key]
		if !ok {
			continue
		}
		if err := field.open(c.cipher, p, sealed); err != nil {
			return nil, errors.Wrapf(err, "decrypt %s", field.key)
		}
	}
	return p, nil
}

// index returns the blind index of a clear value for an indexed field.
func (c paymentCodec) index(value string) string {
	return c.cipher.BlindIndex(value)
}
