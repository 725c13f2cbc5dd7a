package main

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/fieldcrypt"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/services"
)

type application struct {
	cfg    config.Config
	log    *zap.Logger
	tokens *auth.Tokens
	pinger *database.Pinger

	catalog   *services.CatalogService
	coupons   *services.CouponService
	orders    *services.OrderService
	payments  *services.PaymentService
	identity  *services.IdentityService
	addresses *services.AddressBook
}

func newApp(cfg config.Config, client *mongo.Client, db *mongo.Database, log *zap.Logger) (*application, error) {
	cipher, err := fieldcrypt.NewFromHex(cfg.FieldEncryptionKey)
	if err != nil {
		return nil, err
	}

	products := database.NewProductStore(db)
	coupons := database.NewCouponStore(db)
	orders := database.NewOrderStore(db)
	payments := database.NewPaymentStore(db, cipher)
	users := database.NewUserStore(db)
	admins := database.NewAdminStore(db)
	refresh := database.NewRefreshTokenStore(db)

	var notifier services.OrderNotifier = notify.Nop{}
	if cfg.MailEnabled() {
		notifier = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.AdminJWTSecret, cfg.AccessTokenTTL)
	paymentService := services.NewPaymentService(payments, log)

	return &application{
		cfg:      cfg,
		log:      log,
		tokens:   tokens,
		pinger:   database.NewPinger(client),
		catalog:  services.NewCatalogService(products, log),
		coupons:  services.NewCouponService(coupons, products, log),
		payments: paymentService,
		orders: services.NewOrderService(orders, products, coupons, users, paymentService, notifier, services.OrderSettings{
			ShippingCost:   cfg.ShippingCost,
			DeliveryWindow: cfg.DeliveryWindow,
		}, log),
		identity:  services.NewIdentityService(users, admins, refresh, tokens, cfg.RefreshTokenTTL, log),
		addresses: services.NewAddressBook(users, log),
	}, nil
}

// enableTransactions makes order placement transactional when the deployment
// is a replica set or sharded cluster.
func (a *application) enableTransactions(ctx context.Context, client *mongo.Client) {
	ok, err := database.SupportsTransactions(ctx, client)
	if err != nil {
		a.log.Warn("could not detect transaction support", zap.Error(err))
	}
	if !ok {
		a.log.Warn("transactions unavailable, order placement falls back to compensating writes")
		return
	}
	a.orders.WithTransactor(database.NewTransactor(client))
	a.log.Info("order placement runs in transactions")
}

func (a *application) router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(a.log), middleware.Recovery(a.log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = a.cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", handlers.Health(a.pinger))

	userAuth := middleware.UserAuth(a.tokens)
	adminAuth := middleware.AdminAuth(a.tokens)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", handlers.Register(a.identity))
		authGroup.POST("/login", handlers.Login(a.identity))
		authGroup.POST("/refresh", handlers.Refresh(a.identity))
		authGroup.POST("/logout", handlers.Logout(a.identity))
		authGroup.GET("/me", userAuth, handlers.GetMe(a.identity))
	}

	user := api.Group("/user", userAuth)
	{
		user.GET("/addresses", handlers.GetAddresses(a.addresses))
		user.POST("/addresses", handlers.AddAddress(a.addresses))
		user.PUT("/addresses/:id", handlers.UpdateAddress(a.addresses))
		user.DELETE("/addresses/:id", handlers.DeleteAddress(a.addresses))
	}

	api.GET("/products", handlers.GetProducts(a.catalog))
	api.GET("/products/:productId", handlers.GetProduct(a.catalog))

	coupons := api.Group("/coupons")
	{
		coupons.GET("/valid", handlers.GetValidCoupons(a.coupons))
		coupons.POST("/apply", userAuth, handlers.ApplyCoupon(a.coupons))
		coupons.POST("", adminAuth, handlers.CreateCoupon(a.coupons))
		coupons.PUT("/:id", adminAuth, handlers.UpdateCoupon(a.coupons))
		coupons.DELETE("/:id", adminAuth, handlers.DeleteCoupon(a.coupons))
	}

	orders := api.Group("/orders", userAuth)
	{
		orders.POST("", handlers.CreateOrder(a.orders))
		orders.GET("/me", handlers.GetMyOrders(a.orders))
		orders.GET("/:orderId", handlers.GetMyOrder(a.orders))
		orders.PUT("/:orderId", handlers.UpdateMyOrder(a.orders))
	}

	api.POST("/admin/auth/login", handlers.AdminLogin(a.identity))

	admin := api.Group("/admin", adminAuth)
	{
		admin.GET("/products", handlers.AdminGetProducts(a.catalog))
		admin.GET("/products/stats", handlers.GetProductStats(a.catalog))
		admin.POST("/products", handlers.CreateProduct(a.catalog))
		admin.PUT("/products/:productId", handlers.UpdateProduct(a.catalog))
		admin.DELETE("/products/:productId", handlers.DeleteProduct(a.catalog))
		admin.PATCH("/products/:productId/status", handlers.UpdateProductStatus(a.catalog))
		admin.PATCH("/products/:productId/variants/:variantId/stock", handlers.UpdateVariantStock(a.catalog))
		admin.PATCH("/products/:productId/variants/:variantId/price", handlers.UpdateVariantPrice(a.catalog))

		admin.GET("/users", handlers.GetUsers(a.identity))
		admin.GET("/users/:userId", handlers.GetUser(a.identity))

		admin.GET("/orders", handlers.GetAllOrders(a.orders))
		admin.GET("/orders/:orderId", handlers.GetOrder(a.orders))
		admin.PUT("/orders/:orderId", handlers.UpdateOrder(a.orders))

		admin.GET("/payments", handlers.GetPayments(a.payments))
		admin.GET("/payments/:id", handlers.GetPayment(a.payments))
		admin.PUT("/payments/:id", handlers.UpdatePayment(a.payments))
		admin.PATCH("/payments/:id/status", handlers.UpdatePaymentStatus(a.payments))
		admin.POST("/payments/:id/refund", handlers.RefundPayment(a.payments))
	}

	return r
}
