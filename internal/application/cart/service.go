package cart

import (
	"context"
	"fmt"

	domain "github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/pkg/logging"

	"go.uber.org/zap"
)

// ProductReader is the catalog view used on cart paths. Implementations
// may cache: the prices shown here are display-only and are re-read
// authoritatively inside the checkout transaction.
type ProductReader interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

type Service struct {
	repo     domain.Repository
	products ProductReader
}

func NewService(repo domain.Repository, products ProductReader) *Service {
	return &Service{repo: repo, products: products}
}

type ViewLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
	Subtotal    int64
}

type View struct {
	Lines       []ViewLine
	TotalAmount int64
}

// Get returns the cart enriched with current catalog names and prices.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: read lines: %w", err)
	}

	view := &View{Lines: make([]ViewLine, 0, len(lines))}
	for _, l := range lines {
		product, err := s.products.Get(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("cart: load product %s: %w", l.ProductID, err)
		}
		subtotal := int64(l.Quantity) * product.Price
		view.Lines = append(view.Lines, ViewLine{
			ProductID:   l.ProductID,
			ProductName: product.Name,
			Quantity:    l.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		})
		view.TotalAmount += subtotal
	}
	return view, nil
}

// Add puts a product in the cart, incrementing quantity if already there.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) error {
	line, err := domain.NewLine(productID, quantity)
	if err != nil {
		return err
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return fmt.Errorf("cart: product %s: %w", productID, err)
	}
	if err := s.repo.Add(ctx, userID, line); err != nil {
		return fmt.Errorf("cart: add line: %w", err)
	}

	logging.FromContext(ctx).Info("cart_line_added",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return nil
}

// Update replaces a line's quantity; zero or less removes the line.
func (s *Service) Update(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, userID, productID)
	}
	if err := s.repo.SetQuantity(ctx, userID, productID, quantity); err != nil {
		return fmt.Errorf("cart: update line: %w", err)
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		return fmt.Errorf("cart: remove line: %w", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}
