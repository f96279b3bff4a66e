package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/phone"
	"github.com/pedidolabs/pedidobot/internal/store"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive wizard: register a vendor and its first products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}

	var (
		name       string
		category   string
		vendorTel  string
		address    string
		tgChatID   string
		addProduct = true
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Nombre del local").
				Placeholder("Pizzería La Esquina").
				Validate(notEmpty).
				Value(&name),
			huh.NewSelect[string]().
				Title("Rubro").
				Options(
					huh.NewOption("Pizzería", "pizzeria"),
					huh.NewOption("Heladería", "heladeria"),
					huh.NewOption("Verdulería", "verduleria"),
					huh.NewOption("Almacén", "almacen"),
					huh.NewOption("Otro", "otro"),
				).
				Value(&category),
			huh.NewInput().
				Title("Teléfono del local (WhatsApp)").
				Placeholder("+54 9 11 5555 0000").
				Validate(validPhone).
				Value(&vendorTel),
			huh.NewInput().
				Title("Dirección").
				Value(&address),
			huh.NewInput().
				Title("Telegram chat ID para avisos de pedidos (opcional)").
				Validate(optionalInt).
				Value(&tgChatID),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	vendor := &store.Vendor{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Name:     strings.TrimSpace(name),
		Category: category,
		Phone:    phone.Normalize(vendorTel),
		ChatID:   strings.TrimSpace(tgChatID),
		Address:  strings.TrimSpace(address),
		Active:   true,
		Created:  time.Now(),
	}
	if err := stores.Catalog.UpsertVendor(vendor); err != nil {
		return fmt.Errorf("save vendor: %w", err)
	}
	fmt.Printf("Local registrado: %s (%s)\n", vendor.Name, vendor.ID)

	for addProduct {
		var pname, price, desc string
		productForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Producto").
					Placeholder("Pizza muzzarella grande").
					Validate(notEmpty).
					Value(&pname),
				huh.NewInput().
					Title("Precio en pesos (ej. 12500 o 12500.50)").
					Validate(validPrice).
					Value(&price),
				huh.NewInput().
					Title("Descripción (opcional)").
					Value(&desc),
				huh.NewConfirm().
					Title("¿Cargar otro producto?").
					Value(&addProduct),
			),
		)
		if err := productForm.Run(); err != nil {
			return err
		}

		cents, _ := parsePriceCents(price)
		product := &store.Product{
			ID:          uuid.Must(uuid.NewV7()).String(),
			VendorID:    vendor.ID,
			Name:        strings.TrimSpace(pname),
			Description: strings.TrimSpace(desc),
			PriceCents:  cents,
			Available:   true,
			Updated:     time.Now(),
		}
		if err := stores.Catalog.UpsertProduct(product); err != nil {
			return fmt.Errorf("save product: %w", err)
		}
		fmt.Printf("Producto cargado: %s\n", product.Name)
	}

	fmt.Println()
	fmt.Println("¡Listo! Para arrancar el bot:")
	fmt.Println()
	fmt.Println("  export PEDIDOBOT_PROVIDER_API_KEY=...")
	fmt.Println("  export PEDIDOBOT_WA_ACCESS_TOKEN=...")
	fmt.Println("  export PEDIDOBOT_WA_PHONE_NUMBER_ID=...")
	fmt.Println("  export PEDIDOBOT_WA_VERIFY_TOKEN=...")
	fmt.Println("  " + os.Args[0] + " gateway")
	return nil
}

func notEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("este campo es obligatorio")
	}
	return nil
}

func validPhone(s string) error {
	if phone.Normalize(s) == "" {
		return fmt.Errorf("teléfono inválido")
	}
	return nil
}

func optionalInt(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("tiene que ser un número")
	}
	return nil
}

func validPrice(s string) error {
	if _, err := parsePriceCents(s); err != nil {
		return err
	}
	return nil
}

// parsePriceCents accepts "12500", "12500.50", or "12500,50" and returns
// centavos.
func parsePriceCents(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, fmt.Errorf("precio vacío")
	}
	whole, frac, found := strings.Cut(s, ".")
	pesos, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || pesos < 0 {
		return 0, fmt.Errorf("precio inválido")
	}
	cents := pesos * 100
	if found {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		c, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("precio inválido")
		}
		cents += c
	}
	return cents, nil
}
