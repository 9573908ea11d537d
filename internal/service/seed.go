package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/model"
)

type demoProduct struct {
	name, description string
	price             model.Money
	inventory         int
}

type demoRaffle struct {
	name, description string
	totalTickets      int
	ticketPrice       model.Money
}

var demoProducts = []demoProduct{
	{"Smartphone Galaxy Pro", "Último modelo con cámara de 108MP, batería de larga duración y procesador de alta gama.", 89999, 25},
	{"Laptop Gaming Ultra", "Laptop para gaming con RTX 4060, 16GB RAM, SSD 1TB. Perfecta para juegos y trabajo.", 129999, 15},
	{"Auriculares Wireless Premium", "Auriculares inalámbricos con cancelación de ruido activa y 30 horas de batería.", 24999, 50},
	{"Smart Watch Fitness Pro", "Reloj inteligente con monitoreo de salud, GPS y resistencia al agua.", 19999, 30},
}

var demoRaffles = []demoRaffle{
	{"Rifa iPhone 15 Pro", "Gana el último iPhone 15 Pro de 256GB en color azul titanio", 100, 2500},
	{"Rifa Tesla Model 3", "Participa por un Tesla Model 3 completamente equipado. ¡La rifa del siglo!", 1000, 15000},
	{"Rifa MacBook Pro M3", "MacBook Pro de 14 pulgadas con chip M3 Pro, 18GB RAM y 512GB SSD", 200, 7500},
}

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Products []model.Product
	Raffles  []model.Raffle
}

// Reset deletes every sale, ticket, product and raffle.
func (s *Storefront) Reset(ctx context.Context) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.sales.DeleteAllTx(ctx, tx); err != nil {
			return err
		}
		if err := s.tickets.DeleteAllTx(ctx, tx); err != nil {
			return err
		}
		if err := s.products.DeleteAllTx(ctx, tx); err != nil {
			return err
		}
		return s.raffles.DeleteAllTx(ctx, tx)
	})
	if err != nil {
		return s.fail("reset", "Error resetting data", err, nil)
	}
	s.log.Info("all storefront data deleted")
	return nil
}

// Seed inserts the demo catalog through the regular create operations,
// optionally wiping existing data first.
func (s *Storefront) Seed(ctx context.Context, reset bool) (*SeedResult, error) {
	if reset {
		if err := s.Reset(ctx); err != nil {
			return nil, err
		}
	}

	out := &SeedResult{}
	for _, d := range demoProducts {
		price, inventory := d.price, d.inventory
		p, err := s.CreateProduct(ctx, model.NewProduct{
			Name: d.name, Description: d.description, Price: &price, Inventory: &inventory,
		})
		if err != nil {
			return nil, err
		}
		out.Products = append(out.Products, *p)
	}
	for _, d := range demoRaffles {
		desc, total, price := d.description, d.totalTickets, d.ticketPrice
		r, err := s.CreateRaffle(ctx, model.NewRaffle{
			Name: d.name, Description: &desc, TotalTickets: &total, TicketPrice: &price,
		})
		if err != nil {
			return nil, err
		}
		out.Raffles = append(out.Raffles, *r)
	}
	s.log.WithFields(log.Fields{"products": len(out.Products), "raffles": len(out.Raffles)}).Info("demo data seeded")
	return out, nil
}
