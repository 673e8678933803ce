package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/agent/model"
	"github.com/sap-order-agent/server/internal/odata"
)

const (
	ToolTestConnection           = "test_connection"
	ToolReadAndSummarizeOrder    = "read_and_summarize_order"
	ToolGetOrderHeader           = "get_order_header"
	ToolGetOrderItems            = "get_order_items"
	ToolGetOrderWithAssociations = "get_order_with_associations"
	ToolRemoveDeliveryBlock      = "remove_delivery_block"
	ToolDiscoverMetadata         = "discover_metadata"
	ToolGetSalesOrderDetails     = "get_sales_order_details"
	ToolSearchRecentOrders       = "search_recent_orders"
	ToolSearchOrdersByCustomer   = "search_orders_by_customer"
	ToolGetOrderValueRange       = "get_order_value_range"
)

const (
	EntitySalesOrder     = "A_SalesOrder"
	EntityTypeSalesOrder = "A_SalesOrderType"
	NavItems             = "to_Item"

	FailedPrefix = "FAILED:"

	DefaultBlockReason = "Approved by agent"
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
	ValueRangeTop      = 10
)

// writeTools change data in SAP.
var writeTools = map[string]bool{
	ToolRemoveDeliveryBlock: true,
}

// IsWrite reports whether the named tool changes an entity in SAP.
func IsWrite(name string) bool { return writeTools[name] }

// failedf formats a failure reply for the model.
func failedf(format string, args ...any) string {
	return FailedPrefix + " " + fmt.Sprintf(format, args...)
}

// Failed reports whether a tool result is a failure reply.
func Failed(result string) bool { return strings.HasPrefix(result, FailedPrefix) }

var profileTools = map[model.Profile][]string{
	model.ProfileBasic: {
		ToolReadAndSummarizeOrder,
		ToolRemoveDeliveryBlock,
		ToolTestConnection,
	},
	model.ProfileMetadata: {
		ToolGetOrderHeader,
		ToolGetOrderItems,
		ToolGetOrderWithAssociations,
		ToolRemoveDeliveryBlock,
		ToolTestConnection,
		ToolDiscoverMetadata,
	},
	model.ProfileMemory: {
		ToolGetSalesOrderDetails,
		ToolSearchRecentOrders,
		ToolSearchOrdersByCustomer,
		ToolGetOrderValueRange,
	},
}

// Service backs every tool with one OData client. Reads share the client;
// each write takes its own SafeWriter.
type Service struct {
	client   *odata.Client
	metadata *odata.Metadata
	now      func() time.Time
	registry map[string]tool.InvokableTool
}

// NewService builds the tool registry. md may be nil for profiles that
// never call discover_metadata.
func NewService(client *odata.Client, md *odata.Metadata) *Service {
	s := &Service{client: client, metadata: md, now: time.Now}
	s.registry = map[string]tool.InvokableTool{
		ToolTestConnection:           s.testConnectionTool(),
		ToolReadAndSummarizeOrder:    s.readAndSummarizeOrderTool(),
		ToolGetOrderHeader:           s.getOrderHeaderTool(),
		ToolGetOrderItems:            s.getOrderItemsTool(),
		ToolGetOrderWithAssociations: s.getOrderWithAssociationsTool(),
		ToolRemoveDeliveryBlock:      s.removeDeliveryBlockTool(),
		ToolDiscoverMetadata:         s.discoverMetadataTool(),
		ToolGetSalesOrderDetails:     s.getSalesOrderDetailsTool(),
		ToolSearchRecentOrders:       s.searchRecentOrdersTool(),
		ToolSearchOrdersByCustomer:   s.searchOrdersByCustomerTool(),
		ToolGetOrderValueRange:       s.getOrderValueRangeTool(),
	}
	return s
}

// Metadata returns the parsed service metadata, nil when not loaded.
func (s *Service) Metadata() *odata.Metadata {
	return s.metadata
}

// Lookup returns the tool registered under name.
func (s *Service) Lookup(name string) (tool.InvokableTool, bool) {
	t, ok := s.registry[name]
	return t, ok
}

// ToolNames lists the tools of a profile in prompt order.
func ToolNames(p model.Profile) []string {
	return profileTools[p]
}

// ForProfile returns the tools bound to the agent for p.
func (s *Service) ForProfile(p model.Profile) ([]tool.BaseTool, error) {
	names, ok := profileTools[p]
	if !ok {
		return nil, fmt.Errorf("no tools for profile %q", p)
	}
	if p.NeedsMetadata() && s.metadata == nil {
		return nil, fmt.Errorf("profile %q: %w", p, odata.ErrNoMetadata)
	}
	out := make([]tool.BaseTool, 0, len(names))
	for _, name := range names {
		out = append(out, s.registry[name])
	}
	return out, nil
}

// GetToolInfos converts tools to ToolInfos for model binding.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// newTool wraps a typed handler. Handlers report failures as text so a
// broken call never aborts the agent run.
func newTool[T any](info *schema.ToolInfo, fn utils.InvokeFunc[*T, string]) tool.InvokableTool {
	return utils.NewTool(info, fn, utils.WithMarshalOutput(marshalText))
}

func marshalText(_ context.Context, output any) (string, error) {
	if s, ok := output.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("FAILED: could not encode result: %v", err)
	}
	return string(b)
}

func orderIDParam() *schema.ParameterInfo {
	return &schema.ParameterInfo{
		Type:     schema.String,
		Desc:     `The sales order number (e.g., "4353").`,
		Required: true,
	}
}
