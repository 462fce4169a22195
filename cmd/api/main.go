package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/application/emission"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/ose"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/postgres"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/pse"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat/signer"
	httpRouter "github.com/GiacomoGonzales/cobrify-sub003/internal/interfaces/http"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/config"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando motor de emisión")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	docRepo := postgres.NewDocumentRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	claimsRepo := postgres.NewClaimsRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)
	artifactStore := postgres.NewArtifactStore(pool)

	// Transportes: SOL siempre montado; PSE y OSE solo con base URL
	// configurada (las cuentas pueden traer la suya propia igualmente).
	xmlBuilder := sunat.NewXMLBuilderService()
	signerSvc := signer.NewDigitalSignatureService()
	soapClient, err := sunat.NewSOAPClientForEnv(cfg.SUNAT.Environment, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ambiente SUNAT")
	}

	// Credenciales SOL globales: respaldo para cuentas sin credenciales
	// propias. El certificado se valida al arrancar, no en el primer envío.
	var defaultSOL *entity.SOLCredentials
	if cfg.SUNAT.UsuarioSOL != "" && cfg.SUNAT.CertPath != "" {
		p12, err := signer.LoadFromP12File(cfg.SUNAT.CertPath, cfg.SUNAT.CertPassword)
		if err != nil {
			log.Fatal().Err(err).Str("ruta", cfg.SUNAT.CertPath).Msg("certificado SOL global")
		}
		defaultSOL = &entity.SOLCredentials{
			UsuarioSOL:   cfg.SUNAT.UsuarioSOL,
			ClaveSOL:     cfg.SUNAT.ClaveSOL,
			CertP12:      p12,
			CertPassword: cfg.SUNAT.CertPassword,
		}
		log.Info().Str("usuario", cfg.SUNAT.UsuarioSOL).Msg("credenciales SOL globales cargadas")
	}

	transports := []emission.Transport{
		sunat.NewSOLTransport(xmlBuilder, signerSvc, soapClient, defaultSOL, log),
		pse.NewTransport(xmlBuilder, cfg.PSE.BaseURL, log),
		ose.NewTransport(cfg.OSE.BaseURL, log),
	}

	emissionSvc := emission.NewService(
		docRepo, accountRepo, claimsRepo, attemptRepo, artifactStore,
		transports, log,
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 120, // el WS de SUNAT puede tardar
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emission:  emissionSvc,
		JWTSecret: cfg.JWT.Secret,
		Log:       log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("apagando servidor")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("apagado del servidor HTTP")
	}
}
