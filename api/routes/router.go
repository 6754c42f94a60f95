package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopmesh-io/backend/api/controllers"
	"github.com/shopmesh-io/backend/api/middleware"
	cartsvc "github.com/shopmesh-io/backend/internal/cart"
	catalogsvc "github.com/shopmesh-io/backend/internal/catalog"
	checkoutsvc "github.com/shopmesh-io/backend/internal/checkout"
	discountsvc "github.com/shopmesh-io/backend/internal/discount"
	inventorysvc "github.com/shopmesh-io/backend/internal/inventory"
	ordersvc "github.com/shopmesh-io/backend/internal/orders"
	"github.com/shopmesh-io/backend/pkg/config"
	"github.com/shopmesh-io/backend/pkg/db"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/redis"
)

type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.Client
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Cart      cartsvc.Service
	Catalog   catalogsvc.Service
	Checkout  checkoutsvc.Service
	Discounts discountsvc.Service
	Inventory inventorysvc.Service
	Orders    ordersvc.Service
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(d.Logger),
		middleware.RequestID(d.Logger),
		middleware.Logging(d.Logger),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.HealthLive())
	r.Get("/readyz", controllers.HealthReady(d.Logger, d.DB, d.Redis))
	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Config.JWT, d.Logger))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(d.Cart, d.Logger))
			r.Post("/", controllers.CartAddItem(d.Cart, d.Logger))
			r.Patch("/quantity", controllers.CartUpdateQuantity(d.Cart, d.Logger))
			r.Delete("/", controllers.CartClear(d.Cart, d.Logger))
			r.Delete("/shops/{shopID}/items/{productID}", controllers.CartRemoveItem(d.Cart, d.Logger))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.CheckoutExecute(d.Checkout, d.Logger))
			r.Post("/coupon", controllers.CheckoutApplyCoupon(d.Checkout, d.Logger))
			r.Delete("/coupon", controllers.CheckoutCancelCoupon(d.Checkout, d.Logger))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(d.Orders, d.Logger))
			r.Get("/{orderID}", controllers.OrderGet(d.Orders, d.Logger))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/{productID}", controllers.ProductGet(d.Catalog, d.Logger))
			r.Get("/{productID}/stock", controllers.InventoryGetStock(d.Inventory, d.Logger))
		})

		r.Route("/shop", func(r chi.Router) {
			r.Route("/products", func(r chi.Router) {
				r.Get("/", controllers.ProductList(d.Catalog, d.Logger))
				r.Post("/", controllers.ProductCreate(d.Catalog, d.Logger))
				r.Patch("/{productID}", controllers.ProductUpdate(d.Catalog, d.Logger))
				r.Post("/{productID}/publish", controllers.ProductPublish(d.Catalog, d.Logger, true))
				r.Post("/{productID}/unpublish", controllers.ProductPublish(d.Catalog, d.Logger, false))
			})
			r.Route("/discounts", func(r chi.Router) {
				r.Get("/", controllers.DiscountList(d.Discounts, d.Logger))
				r.Post("/", controllers.DiscountCreate(d.Discounts, d.Logger))
				r.Get("/{discountID}/products", controllers.DiscountProducts(d.Discounts, d.Logger))
				r.Patch("/{discountID}", controllers.DiscountUpdate(d.Discounts, d.Logger))
				r.Delete("/{discountID}", controllers.DiscountDeactivate(d.Discounts, d.Logger))
			})
			r.Post("/inventory", controllers.InventoryAddStock(d.Inventory, d.Logger))
		})
	})

	return r
}
