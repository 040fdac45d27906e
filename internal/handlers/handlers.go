package handlers

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contactbook/api/internal/cache"
	"contactbook/api/internal/config"
	"contactbook/api/internal/mail"
	"contactbook/api/internal/middleware"
	"contactbook/api/internal/models"
	"contactbook/api/internal/repository"
	"contactbook/api/internal/security"
	"contactbook/api/internal/service"
	"contactbook/api/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates returns the HTML templates served by the API (the password
// reset form). The server installs them on the gin engine.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	contactSvc  *service.ContactService
	uploadSvc   *service.UploadService
	db          *pgxpool.Pool
	cache       *redis.Client
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	store *storage.ObjectStore,
	mailer mail.Sender,
	codec *security.TokenCodec,
	cfg *config.AppConfig,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	contactRepo := repository.NewContactRepository(db)
	identity := cache.NewIdentityCache(cache.NewRedisStore(redisClient))

	auth := service.NewAuthService(userRepo, tokenRepo, identity, codec, mailer, cfg, log)
	contacts := service.NewContactService(contactRepo, log)
	uploads := service.NewUploadService(userRepo, store, log)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: auth,
		contactSvc:  contacts,
		uploadSvc:   uploads,
		db:          db,
		cache:       redisClient,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthchecker", h.Health)

	auth := router.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)
	auth.GET("/confirmed_email/:token", h.ConfirmEmail)
	auth.POST("/request-email", h.RequestEmail)
	auth.POST("/refresh-token", h.RefreshToken)
	auth.POST("/reset-password-request", h.ResetPasswordRequest)
	auth.GET("/reset-password-form/:token", h.ResetPasswordForm)
	auth.POST("/reset-password", h.ResetPassword)

	users := router.Group("/users")
	users.Use(middleware.Auth(h.authService))
	users.GET("/me", h.Me)

	avatar := router.Group("/users")
	avatar.Use(middleware.Auth(h.authService), middleware.RequireRole(models.UserRoleAdmin))
	avatar.PATCH("/avatar", h.UpdateAvatar)

	contacts := router.Group("/contacts")
	contacts.Use(middleware.Auth(h.authService))
	contacts.GET("", h.ListContacts)
	contacts.GET("/search", h.SearchContacts)
	contacts.GET("/birthdays", h.UpcomingBirthdays)
	contacts.GET("/:id", h.GetContact)
	contacts.POST("", h.CreateContact)
	contacts.PUT("/:id", h.UpdateContact)
	contacts.DELETE("/:id", h.DeleteContact)
}

// currentUser pulls the user placed in the context by the Auth
// middleware.
func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get(middleware.CurrentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}
