package tools

// Catalog returns the store's tool definitions. Every tool resolves to a GET
// against the store backend; the shared /store endpoint is dispatched by its
// action parameter.
func Catalog() []Definition {
	return []Definition{
		{
			Name:        "find_products",
			Description: "Search the Shop Táo Ngon catalog for Apple products by name or keyword. Returns matching products with name, price and availability.",
			Params: []Param{
				{Name: "query", Type: TypeString, Description: "Product name or keywords, e.g. \"iPhone 15\"", Required: true},
				{Name: "category", Type: TypeString, Description: "Optional category filter", Enum: []string{"iphone", "ipad", "mac", "watch", "airpods", "accessories"}},
				{Name: "max_price", Type: TypeNumber, Description: "Optional upper price bound in VND"},
			},
			Resolver: Resolver{
				Path:  "/products/search",
				Query: map[string]string{"query": "q", "category": "category", "max_price": "max_price"},
			},
		},
		{
			Name:        "get_product_details",
			Description: "Get full details (specs, colors, storage options, price, stock) for one product by its id.",
			Params: []Param{
				{Name: "product_id", Type: TypeString, Description: "Product id as returned by find_products", Required: true},
			},
			Resolver: Resolver{Path: "/products/{product_id}"},
		},
		{
			Name:        "check_order_status",
			Description: "Look up the status of a customer's order.",
			Params: []Param{
				{Name: "order_id", Type: TypeString, Description: "Order number", Required: true},
				{Name: "phone", Type: TypeString, Description: "Phone number used for the order"},
			},
			Resolver: Resolver{
				Path:   "/store",
				Action: "order_status",
				Query:  map[string]string{"order_id": "order_id", "phone": "phone"},
			},
		},
		{
			Name:        "list_promotions",
			Description: "List current promotions and discounts, optionally for one product category.",
			Params: []Param{
				{Name: "category", Type: TypeString, Description: "Optional category filter"},
			},
			Resolver: Resolver{
				Path:   "/store",
				Action: "promotions",
				Query:  map[string]string{"category": "category"},
			},
		},
		{
			Name:        "get_store_policy",
			Description: "Get a store policy: warranty, returns, shipping or installment payments.",
			Params: []Param{
				{Name: "topic", Type: TypeString, Description: "Policy topic", Required: true, Enum: []string{"warranty", "returns", "shipping", "installment"}},
			},
			Resolver: Resolver{
				Path:   "/store",
				Action: "policy",
				Query:  map[string]string{"topic": "topic"},
			},
		},
	}
}

// DefaultRegistry builds the registry from Catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err) // catalog is static
	}
	return r
}
