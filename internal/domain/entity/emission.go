package entity

import "time"

// ProviderKind transporte de emisión.
type ProviderKind string

const (
	ProviderSOL ProviderKind = "sol" // envío SOAP directo con certificado propio
	ProviderPSE ProviderKind = "pse" // firma y entrega delegadas a un PSE
	ProviderOSE ProviderKind = "ose" // operador que recibe JSON y arma todo
)

// SOLCredentials credenciales de envío directo (usuario secundario SOL + certificado propio).
type SOLCredentials struct {
	UsuarioSOL   string // se concatena al RUC para el UsernameToken WSSE
	ClaveSOL     string
	CertP12      []byte // contenedor PKCS#12
	CertPassword string
}

// PSECredentials credenciales del proveedor de servicios electrónicos.
type PSECredentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	AutoRegister bool
}

// OSECredentials credenciales del operador de servicios electrónicos.
type OSECredentials struct {
	BaseURL string
	Token   string
}

// EmissionAccountConfig configuración de emisión por emisor. A lo sumo un
// proveedor configurado está activo; Override fuerza uno sin importar el resto.
type EmissionAccountConfig struct {
	RUC         string
	Production  bool         // false = ambiente beta/pruebas
	Override    ProviderKind // vacío = aplicar precedencia
	SOL         *SOLCredentials
	PSE         *PSECredentials
	OSE         *OSECredentials
}

// SubmissionStatus estado del ciclo de envío de un comprobante.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusSending  SubmissionStatus = "sending"
	StatusAccepted SubmissionStatus = "accepted"
	StatusRejected SubmissionStatus = "rejected"
)

// SubmissionAttempt registro de un ciclo de emisión. Lo posee la máquina de
// estados; solo se muta a través de su función de transición.
type SubmissionAttempt struct {
	ID           string
	DocumentID   string
	Status       SubmissionStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	ProviderUsed ProviderKind
	ResponseCode string
	ResponseDesc string
	RetryCount   int
	LastError    string
}

// EmissionResult contrato de salida del motor: siempre uno de los cinco
// desenlaces de la taxonomía, nunca una excepción cruda del transporte.
type EmissionResult struct {
	Accepted  bool
	Transient bool // rechazo/falla transitoria: el documento vuelve a pending(retry)

	// SignedUndelivered: el PSE firmó pero la entrega a SUNAT falló. Requiere
	// seguimiento manual; nunca se reporta como éxito ni como falla simple.
	SignedUndelivered bool

	Code        string
	Description string

	// Artefactos crudos; cada uno es opcional según transporte y desenlace.
	SignedXML []byte
	CDR       []byte

	// Ticket devuelto por baja/resumen (consulta posterior por getStatus).
	Ticket string

	// Enlaces a artefactos alojados por el OSE.
	XMLURL string
	CDRURL string
	PDFURL string
}

// AcceptedWithObservations aceptado con observaciones (código que empieza
// en 4 según el CDR de SUNAT).
func (r *EmissionResult) AcceptedWithObservations() bool {
	return r.Accepted && len(r.Code) > 0 && r.Code[0] == '4'
}
