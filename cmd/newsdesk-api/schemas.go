package main

import (
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/schema"
)

// archiveSchema validates the core of an archive item. Items carry a
// long tail of metadata beyond this core, so unknown fields pass.
func archiveSchema() *schema.Schema {
	return &schema.Schema{
		AllowUnknown: true,
		Fields: map[string]schema.Field{
			models.FieldType: {
				Type: schema.TypeString,
				AllowedValues: []string{
					models.TypeText, models.TypePreformatted, models.TypeComposite,
					models.TypePicture, models.TypeVideo, models.TypeAudio, models.TypeGraphic,
				},
			},
			models.FieldGUID:        {Type: schema.TypeString, Readonly: true},
			models.FieldState:       {Type: schema.TypeString},
			models.FieldHeadline:    {Type: schema.TypeString},
			models.FieldSlugline:    {Type: schema.TypeString, MaxLength: 64},
			models.FieldAbstract:    {Type: schema.TypeString},
			models.FieldBodyHTML:    {Type: schema.TypeString},
			models.FieldLanguage:    {Type: schema.TypeString},
			models.FieldPriority:    {Type: schema.TypeInteger},
			models.FieldUrgency:     {Type: schema.TypeInteger},
			models.FieldTask:        {Type: schema.TypeDict},
			models.FieldGroups:      {Type: schema.TypeList},
			models.FieldAssociations: {Type: schema.TypeDict},
		},
	}
}

func deskSchema() *schema.Schema {
	return &schema.Schema{
		AllowUnknown: true,
		Fields: map[string]schema.Field{
			models.FieldName:                 {Type: schema.TypeString, Required: true, MaxLength: 40},
			models.FieldIncomingStage:        {Type: schema.TypeString},
			models.FieldWorkingStage:         {Type: schema.TypeString},
			models.FieldContentExpiryMinutes: {Type: schema.TypeInteger},
			models.FieldSpikeExpiryMinutes:   {Type: schema.TypeInteger},
		},
	}
}

func stageSchema() *schema.Schema {
	return &schema.Schema{
		AllowUnknown: true,
		Fields: map[string]schema.Field{
			models.FieldName:                 {Type: schema.TypeString, Required: true, MaxLength: 40},
			models.FieldDeskID:               {Type: schema.TypeString, Required: true},
			models.FieldLocalReadonly:        {Type: schema.TypeBoolean},
			models.FieldContentExpiryMinutes: {Type: schema.TypeInteger},
			models.FieldSpikeExpiryMinutes:   {Type: schema.TypeInteger},
		},
	}
}

func userSchema() *schema.Schema {
	return &schema.Schema{
		AllowUnknown: true,
		Fields: map[string]schema.Field{
			models.FieldEmail:    {Type: schema.TypeString, Required: true},
			models.FieldPassword: {Type: schema.TypeString, Required: true},
			models.FieldFullName: {Type: schema.TypeString},
			models.FieldRole:     {Type: schema.TypeString, AllowedValues: []string{string(models.RoleAdmin), string(models.RoleEditor), string(models.RoleJournalist)}},
			models.FieldActive:   {Type: schema.TypeBoolean},
		},
	}
}
