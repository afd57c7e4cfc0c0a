package main

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const (
	orderHistorySubject         = "Your Order History - Rendunks Store"
	purchaseConfirmationSubject = "Thank you for your order - Rendunks Store"
)

var emailFuncs = template.FuncMap{
	"rm":   func(cents int64) string { return "RM " + FormatCents(cents) },
	"date": func(t time.Time) string { return t.Format("02 Jan 2006") },
}

const orderTableTemplate = `
{{define "order"}}
<div style="border:1px solid #e5e7eb;border-radius:8px;padding:16px;margin-bottom:16px">
  <p><strong>Order ID:</strong> {{.ID}}</p>
  <p><strong>Date:</strong> {{date .CreatedAt}}</p>
  <p><strong>Total:</strong> {{rm .Total}}</p>
  {{if .Address}}<p><strong>Shipping address:</strong><br>{{range $i, $l := .Address}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>{{end}}
  <table style="width:100%;border-collapse:collapse">
    <thead>
      <tr><th></th><th align="left">Product</th><th>Size</th><th>Color</th><th>Qty</th><th align="right">Price</th></tr>
    </thead>
    <tbody>
    {{range .Items}}
      <tr>
        <td>{{if .Image}}<img src="{{.Image}}" alt="{{.Name}}" width="64" height="64">{{end}}</td>
        <td>{{.Name}}</td>
        <td align="center">{{.Size}}</td>
        <td align="center">{{.Color}}</td>
        <td align="center">{{.Quantity}}</td>
        <td align="right">{{rm .Price}}</td>
      </tr>
    {{end}}
    </tbody>
  </table>
</div>
{{end}}`

var orderHistoryTemplate = template.Must(template.New("history").Funcs(emailFuncs).Parse(orderTableTemplate + `
<div style="font-family:Arial,sans-serif;max-width:640px;margin:auto">
  <h2>Your Order History</h2>
  <p>Hi {{.Email}}, here are all the orders placed with this email.</p>
  {{range .Orders}}{{template "order" .}}{{end}}
  <p>Thank you for shopping with Rendunks Store.</p>
</div>`))

var purchaseConfirmationTemplate = template.Must(template.New("confirmation").Funcs(emailFuncs).Parse(orderTableTemplate + `
<div style="font-family:Arial,sans-serif;max-width:640px;margin:auto">
  <h2>Thank you for your purchase!</h2>
  <p>We received your payment and your order is being prepared.</p>
  {{template "order" .Order}}
</div>`))

type emailItem struct {
	Image    string
	Name     string
	Size     string
	Color    string
	Quantity int
	Price    int64
}

type emailOrder struct {
	ID        string
	CreatedAt time.Time
	Total     int64
	Address   []string
	Items     []emailItem
}

// optionCells devolve os rótulos da variação para a tabela, "N/A" quando ausentes
func optionCells(opt VariationOption) (size, color string) {
	switch opt.Kind() {
	case OptionSizeAndColor:
		size, _ = opt.Size()
		color, _ = opt.Color()
	case OptionSizeOnly:
		size, _ = opt.Size()
		color = "N/A"
	case OptionColorOnly:
		size = "N/A"
		color, _ = opt.Color()
	case OptionNone:
		size, color = "N/A", "N/A"
	}
	return size, color
}

func newEmailOrder(order Order, publicURL string) emailOrder {
	view := emailOrder{
		ID:        order.ID,
		CreatedAt: order.CreatedAt,
		Total:     order.TotalPriceInCents,
		Items:     make([]emailItem, 0, len(order.Items)),
	}
	if order.ShippingAddress != "" {
		view.Address = strings.Split(order.ShippingAddress, "\n")
	}

	for _, item := range order.Items {
		size, color := optionCells(item.Option())
		image := ""
		if item.ProductImage != "" {
			image = strings.TrimRight(publicURL, "/") + item.ProductImage
		}
		view.Items = append(view.Items, emailItem{
			Image:    image,
			Name:     item.ProductName,
			Size:     size,
			Color:    color,
			Quantity: item.Quantity,
			Price:    item.PriceAtOrder,
		})
	}
	return view
}

// renderOrderHistory monta o HTML do histórico de pedidos
func renderOrderHistory(history *OrderHistory, publicURL string) (string, error) {
	data := struct {
		Email  string
		Orders []emailOrder
	}{Email: history.User.Email}

	for _, order := range history.Orders {
		data.Orders = append(data.Orders, newEmailOrder(order, publicURL))
	}

	var buf bytes.Buffer
	if err := orderHistoryTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render order history: %w", err)
	}
	return buf.String(), nil
}

// renderPurchaseConfirmation monta o HTML de confirmação de compra
func renderPurchaseConfirmation(order *Order, publicURL string) (string, error) {
	data := struct{ Order emailOrder }{Order: newEmailOrder(*order, publicURL)}

	var buf bytes.Buffer
	if err := purchaseConfirmationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render confirmation: %w", err)
	}
	return buf.String(), nil
}
