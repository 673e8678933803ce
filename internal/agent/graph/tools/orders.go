package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/odata"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

type OrderInput struct {
	OrderID string `json:"order_id"`
}

type AssociationsInput struct {
	OrderID      string `json:"order_id"`
	Associations string `json:"associations,omitempty"`
}

type RemoveBlockInput struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type NoInput struct{}

type OrderItem struct {
	Material    string `json:"material"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	NetAmount   string `json:"net_amount"`
	ItemNumber  string `json:"item_number"`
}

type OrderItems struct {
	OrderID    string      `json:"order_id"`
	TotalItems int         `json:"total_items"`
	Items      []OrderItem `json:"items"`
}

func (s *Service) testConnectionTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolTestConnection,
			Desc: "Test the connection to the SAP system. Returns a connection status message.",
		},
		func(ctx context.Context, _ *NoInput) (string, error) {
			if err := s.client.TestConnection(ctx); err != nil {
				logx.Warn().Err(err).Msg("SAP connection test failed")
				return fmt.Sprintf("FAILED: Could not connect to SAP system at %s: %v", s.client.BaseURL(), err), nil
			}
			return fmt.Sprintf("SUCCESS: Connected to SAP system at %s", s.client.BaseURL()), nil
		},
	)
}

func (s *Service) readOrder(ctx context.Context, orderID string, expand ...string) (map[string]any, error) {
	return s.client.Get(ctx, odata.Query{
		EntitySet: EntitySalesOrder,
		Key:       orderID,
		Expand:    expand,
	})
}

func (s *Service) readAndSummarizeOrderTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolReadAndSummarizeOrder,
			Desc: "Read a sales order from SAP and provide a summary with customer, value, date, delivery block state and the first items.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": orderIDParam(),
			}),
		},
		func(ctx context.Context, in *OrderInput) (string, error) {
			orderID := odata.NormalizeOrderID(in.OrderID)
			if orderID == "" {
				return "FAILED: order_id is required", nil
			}
			order, err := s.readOrder(ctx, orderID, NavItems)
			if err != nil {
				logx.Warn().Err(err).Str("order_id", orderID).Msg("read order failed")
				return failedf("Could not read order %s: %v", orderID, err), nil
			}
			return summarizeOrder(order), nil
		},
	)
}

func summarizeOrder(order map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Sales Order Summary for %s**\n\n", odata.String(order, "SalesOrder", "Unknown"))
	fmt.Fprintf(&b, "Customer: %s\n", odata.String(order, "SoldToParty", "Unknown"))
	fmt.Fprintf(&b, "Total Value: %s %s\n",
		odata.String(order, "TransactionCurrency", "USD"),
		odata.String(order, "TotalNetAmount", "0"))
	fmt.Fprintf(&b, "Order Date: %s\n", odata.String(order, "SalesOrderDate", "Unknown"))

	if reason := odata.String(order, "DeliveryBlockReason", ""); reason != "" {
		fmt.Fprintf(&b, "**Delivery Block**: Reason code '%s'\n", reason)
	} else {
		b.WriteString("**No Delivery Blocks** - Order ready for processing\n")
	}

	items := odata.Navigation(order, NavItems)
	if len(items) > 0 {
		fmt.Fprintf(&b, "\n**Items**: %d line items\n", len(items))
		for i, item := range items {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "   %d. Material %s (Qty: %s)\n", i+1,
				odata.String(item, "Material", "Unknown"),
				odata.String(item, "OrderQuantity", "0"))
		}
	}
	return b.String()
}

func (s *Service) getOrderHeaderTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolGetOrderHeader,
			Desc: "Get sales order header information including customer, amounts, dates, and status.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": orderIDParam(),
			}),
		},
		func(ctx context.Context, in *OrderInput) (string, error) {
			orderID := odata.NormalizeOrderID(in.OrderID)
			if orderID == "" {
				return "FAILED: order_id is required", nil
			}
			order, err := s.readOrder(ctx, orderID)
			if err != nil {
				logx.Warn().Err(err).Str("order_id", orderID).Msg("read order header failed")
				return failedf("Error reading order %s: %v", orderID, err), nil
			}
			return prettyJSON(order), nil
		},
	)
}

func (s *Service) getOrderItemsTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolGetOrderItems,
			Desc: "Get detailed item information for a sales order using the to_Item association: materials, quantities, amounts.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": orderIDParam(),
			}),
		},
		func(ctx context.Context, in *OrderInput) (string, error) {
			orderID := odata.NormalizeOrderID(in.OrderID)
			if orderID == "" {
				return "FAILED: order_id is required", nil
			}
			order, err := s.readOrder(ctx, orderID, NavItems)
			if err != nil {
				logx.Warn().Err(err).Str("order_id", orderID).Msg("read order items failed")
				return failedf("Error reading order items for %s: %v", orderID, err), nil
			}

			rows := odata.Navigation(order, NavItems)
			out := OrderItems{OrderID: orderID, TotalItems: len(rows), Items: make([]OrderItem, 0, len(rows))}
			for _, r := range rows {
				out.Items = append(out.Items, OrderItem{
					Material:    odata.String(r, "Material", "Unknown"),
					Description: odata.String(r, "MaterialDescription", "No description"),
					Quantity:    odata.String(r, "OrderQuantity", "0"),
					Unit:        odata.String(r, "OrderQuantityUnit", "EA"),
					NetAmount:   odata.String(r, "NetAmount", "0"),
					ItemNumber:  odata.String(r, "SalesOrderItem", "Unknown"),
				})
			}
			return prettyJSON(out), nil
		},
	)
}

func (s *Service) getOrderWithAssociationsTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolGetOrderWithAssociations,
			Desc: "Get order data with the given associations expanded.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": orderIDParam(),
				"associations": {
					Type: schema.String,
					Desc: `Comma-separated associations to expand (e.g., "to_Item,to_Partner"). Defaults to "to_Item".`,
				},
			}),
		},
		func(ctx context.Context, in *AssociationsInput) (string, error) {
			orderID := odata.NormalizeOrderID(in.OrderID)
			if orderID == "" {
				return "FAILED: order_id is required", nil
			}
			assoc := splitAssociations(in.Associations)
			order, err := s.readOrder(ctx, orderID, assoc...)
			if err != nil {
				logx.Warn().Err(err).Str("order_id", orderID).Strs("associations", assoc).Msg("read order with associations failed")
				return failedf("Error reading order %s with associations %s: %v", orderID, strings.Join(assoc, ","), err), nil
			}
			return prettyJSON(order), nil
		},
	)
}

func splitAssociations(raw string) []string {
	var out []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return []string{NavItems}
	}
	return out
}

// The block is cleared by writing an empty DeliveryBlockReason, overwriting
// whatever value the order held. reason is only echoed back; it is not stored
// on the order.
func (s *Service) removeDeliveryBlockTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolRemoveDeliveryBlock,
			Desc: "Remove the delivery block from a sales order. Changes the order in SAP.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": orderIDParam(),
				"reason": {
					Type: schema.String,
					Desc: "Reason for removing the block (optional).",
				},
			}),
		},
		func(ctx context.Context, in *RemoveBlockInput) (string, error) {
			orderID := odata.NormalizeOrderID(in.OrderID)
			if orderID == "" {
				return "FAILED: order_id is required", nil
			}
			reason := strings.TrimSpace(in.Reason)
			if reason == "" {
				reason = DefaultBlockReason
			}

			w := s.client.NewWriter()
			conf, err := w.Update(ctx, EntitySalesOrder, orderID, map[string]any{"DeliveryBlockReason": ""})
			if err != nil {
				logx.Warn().Err(err).Str("order_id", orderID).Msg("remove delivery block failed")
				return fmt.Sprintf("FAILED: Could not remove delivery block from order %s. Error: %v", orderID, err), nil
			}
			logx.Info().
				Str("order_id", orderID).
				Int("status", conf.Status).
				Bool("conditional", conf.Stamp != "").
				Msg("delivery block removed")
			return fmt.Sprintf("SUCCESS: Delivery block removed from order %s. Reason: %s. Timestamp: %s",
				orderID, reason, s.now().Format("2006-01-02 15:04:05")), nil
		},
	)
}

func (s *Service) discoverMetadataTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolDiscoverMetadata,
			Desc: "Show discovered SAP metadata: entities with their navigation properties and property counts.",
		},
		func(ctx context.Context, _ *NoInput) (string, error) {
			if s.metadata == nil {
				return fmt.Sprintf("FAILED: %v", odata.ErrNoMetadata), nil
			}
			return prettyJSON(s.metadata.Summary()), nil
		},
	)
}
