package emission

import (
	"fmt"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
)

// Route decide el proveedor para una cuenta. Función pura: sin I/O, decidible
// solo con la configuración.
//
// Precedencia: Override explícito > PSE > OSE > SOL. Sin nada configurado se
// asume SOL (el certificado puede venir por variables de entorno globales).
func Route(acc *entity.EmissionAccountConfig) (entity.ProviderKind, error) {
	if acc == nil {
		return "", fmt.Errorf("cuenta de emisión nula")
	}
	if acc.Override != "" {
		switch acc.Override {
		case entity.ProviderSOL, entity.ProviderPSE, entity.ProviderOSE:
			return acc.Override, nil
		default:
			return "", fmt.Errorf("override de proveedor desconocido: %q", acc.Override)
		}
	}
	if acc.PSE != nil && acc.PSE.ClientID != "" {
		return entity.ProviderPSE, nil
	}
	if acc.OSE != nil && acc.OSE.Token != "" {
		return entity.ProviderOSE, nil
	}
	return entity.ProviderSOL, nil
}
