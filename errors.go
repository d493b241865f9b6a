package meridia

import (
	_ "github.com/tinywasm/fmt/dictionary"

	"github.com/tinywasm/fmt"
)

var (
	ErrInvalidCredentials = fmt.Err("access", "denied")             // EN: Access Denied                    / ES: Acceso Denegado
	ErrUnauthorized       = fmt.Err("session", "required")          // EN: Session Required                 / ES: Sesión Requerida
	ErrSuspended          = fmt.Err("user", "suspended")            // EN: User Suspended                   / ES: Usuario Suspendido
	ErrEmailTaken         = fmt.Err("email", "registered")          // EN: Email Registered                 / ES: Correo electrónico Registrado
	ErrWeakPassword       = fmt.Err("password", "weak")             // EN: Password Weak                    / ES: Contraseña Débil
	ErrSessionExpired     = fmt.Err("token", "expired")             // EN: Token Expired                    / ES: Token Expirado
	ErrNotFound           = fmt.Err("user", "not", "found")         // EN: User Not Found                   / ES: Usuario No Encontrado
	ErrNotConfirmed       = fmt.Err("email", "not", "confirmed")    // EN: Email Not Confirmed              / ES: Correo electrónico No Confirmado
	ErrProviderNotFound   = fmt.Err("provider", "not", "found")     // EN: Provider Not Found               / ES: Proveedor No Encontrado
	ErrInvalidOAuthState  = fmt.Err("state", "invalid")             // EN: State Invalid                    / ES: Estado Inválido
	ErrInvalidCode        = fmt.Err("code", "invalid")              // EN: Code Invalid                     / ES: Código Inválido
	ErrCodeExpired        = fmt.Err("code", "expired")              // EN: Code Expired                     / ES: Código Expirado
	ErrMissingFields      = fmt.Err("fields", "required")           // EN: Fields Required                  / ES: Campos Requeridos
	ErrCannotUnlink       = fmt.Err("identity", "cannot", "unlink") // EN: Identity Cannot Unlink           / ES: Identidad No puede Desvincular
	ErrInvalidImage       = fmt.Err("image", "invalid")             // EN: Image Invalid                    / ES: Imagen Inválida
)
