package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
)

var _ repository.AccountConfigRepository = (*AccountRepo)(nil)

// ErrAccountNotFound el emisor no tiene configuración de emisión.
var ErrAccountNotFound = errors.New("cuenta de emisión no encontrada")

// AccountRepo configuración de emisión por emisor (emission_accounts). Las
// credenciales de cada proveedor van en columnas opcionales: un grupo completo
// de columnas NULL significa proveedor no configurado.
type AccountRepo struct {
	q Querier
}

func NewAccountRepository(q Querier) *AccountRepo {
	return &AccountRepo{q: q}
}

func (r *AccountRepo) GetByRUC(ctx context.Context, ruc string) (*entity.EmissionAccountConfig, error) {
	var (
		acc          entity.EmissionAccountConfig
		override     *string
		usuarioSOL   *string
		claveSOL     *string
		certP12      []byte
		certPassword *string
		pseBaseURL   *string
		pseClientID  *string
		pseSecret    *string
		pseAutoReg   *bool
		oseBaseURL   *string
		oseToken     *string
	)

	err := r.q.QueryRow(ctx, `
		SELECT ruc, production, provider_override,
		       usuario_sol, clave_sol, cert_p12, cert_password,
		       pse_base_url, pse_client_id, pse_client_secret, pse_auto_register,
		       ose_base_url, ose_token
		FROM emission_accounts
		WHERE ruc = $1`, ruc).Scan(
		&acc.RUC, &acc.Production, &override,
		&usuarioSOL, &claveSOL, &certP12, &certPassword,
		&pseBaseURL, &pseClientID, &pseSecret, &pseAutoReg,
		&oseBaseURL, &oseToken,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leer cuenta de emisión %s: %w", ruc, err)
	}

	acc.Override = entity.ProviderKind(orEmpty(override))
	if usuarioSOL != nil {
		acc.SOL = &entity.SOLCredentials{
			UsuarioSOL:   *usuarioSOL,
			ClaveSOL:     orEmpty(claveSOL),
			CertP12:      certP12,
			CertPassword: orEmpty(certPassword),
		}
	}
	if pseClientID != nil {
		acc.PSE = &entity.PSECredentials{
			BaseURL:      orEmpty(pseBaseURL),
			ClientID:     *pseClientID,
			ClientSecret: orEmpty(pseSecret),
			AutoRegister: pseAutoReg != nil && *pseAutoReg,
		}
	}
	if oseToken != nil {
		acc.OSE = &entity.OSECredentials{
			BaseURL: orEmpty(oseBaseURL),
			Token:   *oseToken,
		}
	}
	return &acc, nil
}
