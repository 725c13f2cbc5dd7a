package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/database"
	"storefront/internal/models"
)

type orderEnv struct {
	orders   *fakeOrders
	products *fakeProducts
	coupons  *fakeCoupons
	users    *fakeUsers
	payments *fakePayments
	notifier *recordingNotifier
	service  *OrderService
}

func newOrderEnv(products ...*models.Product) *orderEnv {
	env := &orderEnv{
		orders:   newFakeOrders(),
		products: newFakeProducts(products...),
		coupons:  newFakeCoupons(),
		users:    newFakeUsers(),
		payments: newFakePayments(),
		notifier: &recordingNotifier{},
	}
	ledger := NewPaymentService(env.payments, testLogger())
	ledger.now = fixedNow
	env.service = NewOrderService(env.orders, env.products, env.coupons, env.users, ledger, env.notifier,
		OrderSettings{ShippingCost: 50, DeliveryWindow: 7 * 24 * time.Hour}, testLogger())
	env.service.now = fixedNow
	return env
}

func customer() auth.Principal {
	return auth.Principal{ID: primitive.NewObjectID(), Email: "asha@example.com", Role: auth.RoleCustomer}
}

func cartOf(product *models.Product, variantID primitive.ObjectID, qty int) []CartItem {
	return []CartItem{{ProductID: product.ID.Hex(), VariantID: variantID.Hex(), Quantity: qty}}
}

func TestPlaceOrder(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	coupon := save10()
	env.coupons = newFakeCoupons(coupon)
	env.service.coupons = env.coupons
	p := customer()

	order, err := env.service.Place(context.Background(), p, PlaceOrderInput{
		Items:        cartOf(product, variantID, 2),
		Address:      validAddress(),
		CouponCode:   "save10",
		CustomerNote: "  ring the bell ",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^ORD-20240510-[0-9A-F]{8}$`, order.OrderNumber)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, 150.0, order.TotalAmount)
	require.NotNil(t, order.Discount)
	assert.Equal(t, 15.0, order.Discount.Amount)
	assert.Equal(t, 185.0, order.PayableAmount)
	assert.Equal(t, 50.0, order.Shipping.Cost)
	assert.Equal(t, "ring the bell", order.CustomerNote)
	assert.Equal(t, models.AddressOther, order.Address.Category)
	assert.Equal(t, testNow.Add(7*24*time.Hour), order.EstimatedDeliveryDate)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 75.0, order.Items[0].Variant.UnitPrice)
	assert.Equal(t, 150.0, order.Items[0].LineTotal)

	assert.Equal(t, 8, env.products.stock(product.ID, variantID))
	assert.Equal(t, 1, env.coupons.used(coupon.ID))
	assert.Equal(t, []string{order.OrderNumber}, env.notifier.orders)
}

func TestPlaceOrderInsufficientStockChangesNothing(t *testing.T) {
	product, variantID := productWithVariant(1, 80, 75)
	env := newOrderEnv(product)
	coupon := save10()
	env.coupons = newFakeCoupons(coupon)
	env.service.coupons = env.coupons

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:      cartOf(product, variantID, 2),
		Address:    validAddress(),
		CouponCode: "SAVE10",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
	assert.Equal(t, 1, env.products.stock(product.ID, variantID))
	assert.Zero(t, env.coupons.used(coupon.ID))
	assert.Empty(t, env.orders.orders)
}

func TestPlaceOrderRollsBackEarlierLinesWhenLaterLineFails(t *testing.T) {
	first, firstVariant := productWithVariant(5, 80, 75)
	second, secondVariant := productWithVariant(5, 40, 30)
	env := newOrderEnv(first, second)
	env.products.failDecrementAt = 2

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items: []CartItem{
			{ProductID: first.ID.Hex(), VariantID: firstVariant.Hex(), Quantity: 2},
			{ProductID: second.ID.Hex(), VariantID: secondVariant.Hex(), Quantity: 1},
		},
		Address: validAddress(),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
	assert.Equal(t, 5, env.products.stock(first.ID, firstVariant))
	assert.Equal(t, 5, env.products.stock(second.ID, secondVariant))
	assert.Zero(t, first.Sales)
}

func TestPlaceOrderInsertFailureReleasesStockAndCoupon(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	coupon := save10()
	env.coupons = newFakeCoupons(coupon)
	env.service.coupons = env.coupons
	env.orders.insertErr = errors.New("write failed")

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:      cartOf(product, variantID, 2),
		Address:    validAddress(),
		CouponCode: "SAVE10",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Equal(t, 10, env.products.stock(product.ID, variantID))
	assert.Zero(t, env.coupons.used(coupon.ID))
}

func TestPlaceOrderRetriesOnNumberCollision(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	env.orders.numbers["ORD-20240510-AAAAAAAA"] = true

	numbers := []string{"ORD-20240510-AAAAAAAA", "ORD-20240510-BBBBBBBB"}
	calls := 0
	env.service.newOrderNumber = func(time.Time) string {
		n := numbers[calls]
		calls++
		return n
	}

	order, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:   cartOf(product, variantID, 1),
		Address: validAddress(),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240510-BBBBBBBB", order.OrderNumber)
	assert.Equal(t, 2, calls)
}

func TestPlaceOrderGivesUpAfterRepeatedCollisions(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	env.orders.numbers["ORD-20240510-AAAAAAAA"] = true
	env.service.newOrderNumber = func(time.Time) string { return "ORD-20240510-AAAAAAAA" }

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:   cartOf(product, variantID, 1),
		Address: validAddress(),
	})
	require.Error(t, err)
	assert.Equal(t, 10, env.products.stock(product.ID, variantID))
}

func TestPlaceOrderValidation(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	missingCity := validAddress()
	missingCity.City = ""

	tests := []struct {
		name string
		in   PlaceOrderInput
		code apperr.Code
	}{
		{
			name: "empty cart",
			in:   PlaceOrderInput{Address: validAddress()},
			code: apperr.CodeValidation,
		},
		{
			name: "bad quantity",
			in:   PlaceOrderInput{Items: cartOf(product, variantID, 0), Address: validAddress()},
			code: apperr.CodeValidation,
		},
		{
			name: "missing address",
			in:   PlaceOrderInput{Items: cartOf(product, variantID, 1)},
			code: apperr.CodeInvalidAddress,
		},
		{
			name: "incomplete address",
			in:   PlaceOrderInput{Items: cartOf(product, variantID, 1), Address: missingCity},
			code: apperr.CodeInvalidAddress,
		},
		{
			name: "line total mismatch",
			in: PlaceOrderInput{
				Items:   []CartItem{{ProductID: product.ID.Hex(), VariantID: variantID.Hex(), Quantity: 2, LineTotal: floatPtr(140)}},
				Address: validAddress(),
			},
			code: apperr.CodeLineTotalMismatch,
		},
		{
			name: "unknown variant",
			in: PlaceOrderInput{
				Items:   []CartItem{{ProductID: product.ID.Hex(), VariantID: primitive.NewObjectID().Hex(), Quantity: 1}},
				Address: validAddress(),
			},
			code: apperr.CodeVariantNotFound,
		},
		{
			name: "unknown coupon",
			in:   PlaceOrderInput{Items: cartOf(product, variantID, 1), Address: validAddress(), CouponCode: "NOPE1"},
			code: apperr.CodeCouponNotFound,
		},
		{
			name: "unknown payment",
			in:   PlaceOrderInput{Items: cartOf(product, variantID, 1), Address: validAddress(), PaymentID: primitive.NewObjectID().Hex()},
			code: apperr.CodePaymentNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newOrderEnv(product)
			_, err := env.service.Place(context.Background(), customer(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.Equal(t, 10, env.products.stock(product.ID, variantID))
			assert.Empty(t, env.orders.orders)
		})
	}
}

func TestPlaceOrderLineTotalWithinACentIsAccepted(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)

	order, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:   []CartItem{{ProductID: product.ID.Hex(), VariantID: variantID.Hex(), Quantity: 2, LineTotal: floatPtr(150.01)}},
		Address: validAddress(),
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, order.Items[0].LineTotal)
}

func TestPlaceOrderRejectsNonPositivePayable(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	env.service.settings.ShippingCost = 0
	coupon := &models.Coupon{Code: "FREEBIE", DiscountType: models.DiscountFixed, DiscountValue: 500, Active: true}
	env.coupons = newFakeCoupons(coupon)
	env.service.coupons = env.coupons

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:      cartOf(product, variantID, 1),
		Address:    validAddress(),
		CouponCode: "FREEBIE",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))
	assert.Equal(t, 10, env.products.stock(product.ID, variantID))
	assert.Zero(t, env.coupons.used(coupon.ID))
}

func TestPlaceOrderUsesSavedAddress(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	p := customer()
	saved := models.SavedAddress{ID: "home-1", Address: *validAddress(), IsDefault: true}
	saved.Category = models.AddressHome
	env.users = newFakeUsers(&models.User{ID: p.ID, Email: p.Email, Addresses: []models.SavedAddress{saved}})
	env.service.users = env.users

	order, err := env.service.Place(context.Background(), p, PlaceOrderInput{
		Items:     cartOf(product, variantID, 1),
		AddressID: "home-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Pune", order.Address.City)
	assert.Equal(t, models.AddressHome, order.Address.Category)

	_, err = env.service.Place(context.Background(), p, PlaceOrderInput{
		Items:     cartOf(product, variantID, 1),
		AddressID: "missing",
	})
	assert.Equal(t, apperr.CodeInvalidAddress, apperr.CodeOf(err))
}

func TestPlaceOrderLinksExistingPayment(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	p := customer()
	payment := &models.Payment{ID: primitive.NewObjectID(), PaymentMethod: models.PaymentUPI, PaymentStatus: models.PaymentPaid, Amount: 125, PaymentBy: p.ID}
	env.payments.payments[payment.ID] = payment

	order, err := env.service.Place(context.Background(), p, PlaceOrderInput{
		Items:     cartOf(product, variantID, 1),
		Address:   validAddress(),
		PaymentID: payment.ID.Hex(),
	})
	require.NoError(t, err)
	require.NotNil(t, order.PaymentID)
	assert.Equal(t, payment.ID, *order.PaymentID)
}

func TestPlaceOrderRejectsAnotherUsersPayment(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	payment := &models.Payment{ID: primitive.NewObjectID(), PaymentMethod: models.PaymentUPI, PaymentStatus: models.PaymentPaid, Amount: 125, PaymentBy: primitive.NewObjectID()}
	env.payments.payments[payment.ID] = payment

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:     cartOf(product, variantID, 1),
		Address:   validAddress(),
		PaymentID: payment.ID.Hex(),
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.Equal(t, 10, env.products.stock(product.ID, variantID))
	assert.Empty(t, env.orders.orders)
}

func TestPlaceOrderCouponChangedBeforeRedeem(t *testing.T) {
	expired := testNow.Add(-time.Minute)
	usedUp := func(c *models.Coupon) {
		c.UsageLimit = intPtr(3)
		c.UsedCount = 3
	}
	tests := []struct {
		name   string
		change func(c *models.Coupon)
		code   apperr.Code
	}{
		{
			name:   "used up",
			change: usedUp,
			code:   apperr.CodeCouponLimitReached,
		},
		{
			name:   "deactivated",
			change: func(c *models.Coupon) { c.Active = false },
			code:   apperr.CodeCouponNotFound,
		},
		{
			name:   "expired",
			change: func(c *models.Coupon) { c.ExpirationDate = &expired },
			code:   apperr.CodeCouponExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, variantID := productWithVariant(10, 80, 75)
			env := newOrderEnv(product)
			coupon := save10()
			env.coupons = newFakeCoupons(coupon)
			env.coupons.beforeRedeem = tt.change
			env.service.coupons = env.coupons

			_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
				Items:      cartOf(product, variantID, 2),
				Address:    validAddress(),
				CouponCode: "SAVE10",
			})
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.Equal(t, 10, env.products.stock(product.ID, variantID))
			assert.Zero(t, product.Sales)
			assert.Empty(t, env.orders.orders)
		})
	}
}

func TestPlaceOrderExhaustedCouponKeepsUsedCount(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	coupon := save10()
	coupon.UsageLimit = intPtr(1)
	env.coupons = newFakeCoupons(coupon)
	env.coupons.beforeRedeem = func(c *models.Coupon) { c.UsedCount = 1 }
	env.service.coupons = env.coupons

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:      cartOf(product, variantID, 2),
		Address:    validAddress(),
		CouponCode: "SAVE10",
	})
	assert.Equal(t, apperr.CodeCouponLimitReached, apperr.CodeOf(err))
	assert.Equal(t, 1, env.coupons.used(coupon.ID))
	assert.Equal(t, 10, env.products.stock(product.ID, variantID))
}

func TestPlaceOrderConcurrentLastUnit(t *testing.T) {
	for _, transactional := range []bool{false, true} {
		name := "compensation"
		if transactional {
			name = "transaction"
		}
		t.Run(name, func(t *testing.T) {
			product, variantID := productWithVariant(1, 80, 75)
			env := newOrderEnv(product)
			if transactional {
				env.transactional()
			}

			const buyers = 2
			var wg sync.WaitGroup
			errs := make([]error, buyers)
			for i := 0; i < buyers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = env.service.Place(context.Background(), customer(), PlaceOrderInput{
						Items:   cartOf(product, variantID, 1),
						Address: validAddress(),
					})
				}(i)
			}
			wg.Wait()

			placed := 0
			for _, err := range errs {
				if err == nil {
					placed++
					continue
				}
				assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
			}
			assert.Equal(t, 1, placed)
			assert.Equal(t, 0, env.products.stock(product.ID, variantID))
			assert.Len(t, env.orders.orders, 1)
		})
	}
}

func (env *orderEnv) transactional() *fakeTx {
	tx := &fakeTx{products: env.products, coupons: env.coupons, orders: env.orders}
	env.service.WithTransactor(tx)
	return tx
}

func TestPlaceOrderInTransaction(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	coupon := save10()
	env.coupons = newFakeCoupons(coupon)
	env.service.coupons = env.coupons
	tx := env.transactional()

	order, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:      cartOf(product, variantID, 2),
		Address:    validAddress(),
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)
	assert.False(t, order.ID.IsZero())
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, 8, env.products.stock(product.ID, variantID))
	assert.Equal(t, 1, env.coupons.used(coupon.ID))
}

func TestPlaceOrderTransactionAbortUndoesEverything(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	coupon := save10()
	env.coupons = newFakeCoupons(coupon)
	env.service.coupons = env.coupons
	env.orders.insertErr = errors.New("write failed")
	tx := env.transactional()

	_, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:      cartOf(product, variantID, 2),
		Address:    validAddress(),
		CouponCode: "SAVE10",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Equal(t, 1, tx.aborts)
	assert.Equal(t, 10, env.products.stock(product.ID, variantID))
	assert.Zero(t, product.Sales)
	assert.Zero(t, env.coupons.used(coupon.ID))
	assert.Zero(t, env.products.increments)
}

func TestPlaceOrderTransactionRetriesOnNumberCollision(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	env.orders.numbers["ORD-20240510-AAAAAAAA"] = true
	tx := env.transactional()

	numbers := []string{"ORD-20240510-AAAAAAAA", "ORD-20240510-BBBBBBBB"}
	calls := 0
	env.service.newOrderNumber = func(time.Time) string {
		n := numbers[calls]
		calls++
		return n
	}

	order, err := env.service.Place(context.Background(), customer(), PlaceOrderInput{
		Items:   cartOf(product, variantID, 3),
		Address: validAddress(),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240510-BBBBBBBB", order.OrderNumber)
	assert.Equal(t, 2, tx.calls)
	assert.Equal(t, 1, tx.aborts)
	assert.Equal(t, 7, env.products.stock(product.ID, variantID))
	assert.Zero(t, env.products.increments)
}

func placedOrder(t *testing.T, env *orderEnv, p auth.Principal, product *models.Product, variantID primitive.ObjectID) *models.Order {
	t.Helper()
	order, err := env.service.Place(context.Background(), p, PlaceOrderInput{
		Items:   cartOf(product, variantID, 1),
		Address: validAddress(),
	})
	require.NoError(t, err)
	return order
}

func TestUpdateOwnOrder(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	p := customer()
	order := placedOrder(t, env, p, product, variantID)

	newAddress := validAddress()
	newAddress.City = "Mumbai"
	updated, err := env.service.UpdateOwn(context.Background(), p, order.ID, OwnOrderUpdate{
		CustomerNote: strPtr("leave at door"),
		GiftOptions:  &models.GiftOptions{IsGift: true, Message: "Happy birthday"},
		Address:      newAddress,
	})
	require.NoError(t, err)
	assert.Equal(t, "leave at door", updated.CustomerNote)
	assert.Equal(t, "Mumbai", updated.Address.City)
	require.NotNil(t, updated.GiftOptions)
	assert.True(t, updated.GiftOptions.IsGift)
}

func TestUpdateOwnOrderRejectsOtherUsers(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	order := placedOrder(t, env, customer(), product, variantID)

	_, err := env.service.UpdateOwn(context.Background(), customer(), order.ID, OwnOrderUpdate{CustomerNote: strPtr("mine now")})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestUpdateOwnOrderAddressOnlyWhilePending(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	p := customer()
	order := placedOrder(t, env, p, product, variantID)
	env.orders.orders[order.ID].Status = models.OrderShipped

	_, err := env.service.UpdateOwn(context.Background(), p, order.ID, OwnOrderUpdate{Address: validAddress()})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))

	updated, err := env.service.UpdateOwn(context.Background(), p, order.ID, OwnOrderUpdate{CustomerNote: strPtr("thanks")})
	require.NoError(t, err)
	assert.Equal(t, "thanks", updated.CustomerNote)
}

func TestUpdateOwnOrderRequiresAField(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	p := customer()
	order := placedOrder(t, env, p, product, variantID)

	_, err := env.service.UpdateOwn(context.Background(), p, order.ID, OwnOrderUpdate{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGetMineHidesOtherUsersOrders(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	owner := customer()
	order := placedOrder(t, env, owner, product, variantID)

	got, err := env.service.GetMine(context.Background(), owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	_, err = env.service.GetMine(context.Background(), customer(), order.ID)
	assert.Equal(t, apperr.CodeOrderNotFound, apperr.CodeOf(err))
}

func TestListMineReturnsOnlyOwnOrders(t *testing.T) {
	product, variantID := productWithVariant(10, 80, 75)
	env := newOrderEnv(product)
	owner := customer()
	placedOrder(t, env, owner, product, variantID)
	placedOrder(t, env, owner, product, variantID)
	placedOrder(t, env, customer(), product, variantID)

	orders, err := env.service.ListMine(context.Background(), owner, nil, nil)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestAdminListValidatesStatus(t *testing.T) {
	env := newOrderEnv()
	_, err := env.service.AdminList(context.Background(), database.OrderQuery{Status: "lost"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
