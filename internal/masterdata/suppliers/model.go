package suppliers

// Supplier mirrors the ERP Proveedores master record.
type Supplier struct {
	CodigoProveedor string `json:"codigoProveedor"`
	RazonSocial     string `json:"razonSocial"`
	CifDni          string `json:"cifDni"`
	Domicilio       string `json:"domicilio"`
	Municipio       string `json:"municipio"`
	CodigoNacion    string `json:"codigoNacion"`
	Nacion          string `json:"nacion"`
	Telefono        string `json:"telefono"`
	Email           string `json:"email"`
	CondicionesPago string `json:"condicionesPago"`
}

// Placeholder is the documented fallback used when a supplier referenced by
// an order line has no master record. Delivery-note generation must not fail
// on missing master data.
func Placeholder(codigo string) Supplier {
	return Supplier{
		CodigoProveedor: codigo,
		RazonSocial:     "PROVEEDOR GENERICO",
		CodigoNacion:    "108",
		Nacion:          "ESPAÑA",
	}
}
