package emission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/application/emission"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
)

func TestRoute_Precedencia(t *testing.T) {
	sol := &entity.SOLCredentials{UsuarioSOL: "MODDATOS", ClaveSOL: "moddatos"}
	pse := &entity.PSECredentials{ClientID: "cli", ClientSecret: "sec"}
	ose := &entity.OSECredentials{Token: "tok"}

	casos := []struct {
		nombre string
		acc    *entity.EmissionAccountConfig
		want   entity.ProviderKind
	}{
		{"sin nada configurado cae a SOL", &entity.EmissionAccountConfig{}, entity.ProviderSOL},
		{"solo SOL", &entity.EmissionAccountConfig{SOL: sol}, entity.ProviderSOL},
		{"solo OSE", &entity.EmissionAccountConfig{OSE: ose}, entity.ProviderOSE},
		{"solo PSE", &entity.EmissionAccountConfig{PSE: pse}, entity.ProviderPSE},
		{"PSE gana a OSE", &entity.EmissionAccountConfig{PSE: pse, OSE: ose}, entity.ProviderPSE},
		{"PSE gana a SOL", &entity.EmissionAccountConfig{PSE: pse, SOL: sol}, entity.ProviderPSE},
		{"OSE gana a SOL", &entity.EmissionAccountConfig{OSE: ose, SOL: sol}, entity.ProviderOSE},
		{"PSE sin client_id no cuenta", &entity.EmissionAccountConfig{PSE: &entity.PSECredentials{}, OSE: ose}, entity.ProviderOSE},
		{"OSE sin token no cuenta", &entity.EmissionAccountConfig{OSE: &entity.OSECredentials{}}, entity.ProviderSOL},
		{"override SOL gana a todo", &entity.EmissionAccountConfig{Override: entity.ProviderSOL, PSE: pse, OSE: ose}, entity.ProviderSOL},
		{"override OSE gana a PSE", &entity.EmissionAccountConfig{Override: entity.ProviderOSE, PSE: pse, OSE: ose}, entity.ProviderOSE},
	}

	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			got, err := emission.Route(c.acc)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestRoute_OverrideDesconocido(t *testing.T) {
	_, err := emission.Route(&entity.EmissionAccountConfig{Override: entity.ProviderKind("sunat-directo")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override de proveedor desconocido")
}

func TestRoute_CuentaNula(t *testing.T) {
	_, err := emission.Route(nil)
	require.Error(t, err)
}
