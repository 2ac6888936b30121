package articles

// Article mirrors the ERP Articulos master record.
type Article struct {
	CodigoArticulo      string  `json:"codigoArticulo"`
	CodigoEmpresa       int     `json:"codigoEmpresa"`
	DescripcionArticulo string  `json:"descripcionArticulo"`
	PrecioCompra        float64 `json:"precioCompra"`
	PorcentajeIva       float64 `json:"porcentajeIva"`
	CodigoProveedor     string  `json:"codigoProveedor"`
}
