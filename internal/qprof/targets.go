// Package qprof drives the QPROF web application through a real browser
// session to import CNAB return files. The target system has no API; every
// interaction goes through its rendered UI, matched by the labels below.
package qprof

const (
	loginUserField     = `#txbUser`
	loginPasswordField = `#txbPassword`
	loginButton        = `#btnLogin`

	// The login page URL keeps this marker; leaving it means the session
	// is established.
	loginPageMarker = "Login.aspx"

	// Shown when the account is already signed in elsewhere.
	forceSignoutLabel = "Sim"

	menuCategoryLabel = "COBRANÇA"
	menuItemLabel     = "FCO001 - Cobrança"
	returnsTabLabel   = "Ret. Bancário"

	chooseFileLabel = "Selecionar"
	importLabel     = "Importar"

	// Cap on how many visible labels get dumped to the audit log when a
	// navigation target is missing.
	maxLabelDump = 20
)

var modalConfirmLabels = []string{"OK", "Confirmar"}
